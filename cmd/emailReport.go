/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/metrics"
	"github.com/ademuri/listening-identity/internal/report"
)

type EmailReportConfig struct {
	To     string
	From   string
	Start  time.Time
	End    time.Time
	DryRun bool
}

// emailReportCmd represents the email-report command
var emailReportCmd = &cobra.Command{
	Use:   "email-report <address> [from] [to]",
	Short: "Emails the metrics report",
	Long: `Sends the metrics as an HTML email through SendGrid. Dates work as for the
metrics command. Needs sendgrid_api_key and from unless --dry_run is given.`,
	Args: cobra.RangeArgs(1, 3),
	Run: func(cmd *cobra.Command, args []string) {
		config := EmailReportConfig{
			To:     args[0],
			From:   viper.GetString("from"),
			DryRun: viper.GetBool("dry_run"),
		}
		if len(args) > 1 {
			var err error
			config.Start, config.End, err = parseDateRangeFromArgs(args[1:])
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}

		if err := emailReport(cmd.Context(), cmd.OutOrStdout(), config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(emailReportCmd)

	var dryRun bool
	emailReportCmd.Flags().BoolVarP(&dryRun, "dry_run", "n", false, "When true, just print instead of emailing")
	viper.BindPFlag("dry_run", emailReportCmd.Flags().Lookup("dry_run"))
}

func emailReport(ctx context.Context, out io.Writer, config EmailReportConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := computeSnapshot(ctx, st, config.Start, config.End)
	if err != nil {
		return err
	}
	subject, text, html, err := generateReportEmail(snap)
	if err != nil {
		return err
	}

	if config.DryRun {
		fmt.Fprintf(out, "Would have sent email to %s: \nsubject: %s\n%s\n", config.To, subject, html)
		return nil
	}

	apiKey := viper.GetString("sendgrid_api_key")
	if apiKey == "" || config.From == "" {
		return fmt.Errorf("sendgrid_api_key and from must be set in order to send emails")
	}

	from := mail.NewEmail("listening-identity", config.From)
	to := mail.NewEmail(config.To, config.To)
	message := mail.NewSingleEmail(from, subject, to, text, html)
	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sendEmail: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendEmail: status %d: %s", response.StatusCode, response.Body)
	}

	fmt.Fprintf(out, "Sent %q to %s\n", subject, config.To)
	return nil
}

// generateReportEmail renders snap as the subject, a plain text body and an
// HTML body.
func generateReportEmail(snap metrics.Snapshot) (subject string, text string, html string, err error) {
	// Subject line format: Listening identity <Start> to <End>
	subject = fmt.Sprintf("Listening identity %s to %s", snap.From.Format("2006-01-02"), snap.To.Format("2006-01-02"))

	var buf bytes.Buffer
	if err = report.Table(&buf, snap); err != nil {
		return
	}
	text = buf.String()

	buf.Reset()
	if err = report.HTML(&buf, snap); err != nil {
		return
	}
	html = buf.String()
	return
}
