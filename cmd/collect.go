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
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/collector"
)

type CollectConfig struct {
	Limit       int
	Windows     []string
	MetricsFile string
}

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetches recent listening data from the configured provider",
	Long: `Stores recently played tracks, their audio features and the current top
artists in the local SQLite database. Meant to be run periodically, e.g. from
cron; running it again over the same plays adds nothing.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := CollectConfig{
			Limit:       viper.GetInt("limit"),
			Windows:     viper.GetStringSlice("windows"),
			MetricsFile: viper.GetString("metrics-file"),
		}

		if err := collect(cmd.Context(), config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	var limit int
	collectCmd.Flags().IntVar(&limit, "limit", 50, "Number of recently played tracks to request")
	viper.BindPFlag("limit", collectCmd.Flags().Lookup("limit"))

	var windows []string
	collectCmd.Flags().StringSliceVar(&windows, "windows", nil, "Top-artist windows to snapshot (default: all the provider offers)")
	viper.BindPFlag("windows", collectCmd.Flags().Lookup("windows"))

	var metricsFile string
	collectCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	viper.BindPFlag("metrics-file", collectCmd.Flags().Lookup("metrics-file"))
}

func collect(ctx context.Context, config CollectConfig) error {
	client, windows, err := newClient(ctx)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	if len(config.Windows) > 0 {
		windows = config.Windows
	}
	return runCollection(ctx, client, windows, config)
}

func runCollection(ctx context.Context, client collector.Client, windows []string, config CollectConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := collector.CollectOnce(ctx, client, st, collector.Options{
		Limit:   config.Limit,
		Windows: windows,
		Logger:  slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("collecting: %w", err)
	}

	fmt.Printf("Run %s: %d new listens, %d already stored, %d top artists, %d errors (%s)\n",
		report.RunID, report.EventsAdded, report.EventsSkipped, report.ArtistsRanked,
		len(report.Errors), report.Duration.Round(time.Millisecond))
	for _, e := range report.Errors {
		fmt.Printf("  %s\n", e)
	}

	if config.MetricsFile != "" {
		finished := float64(time.Now().Unix())
		if err := report.WriteTextfile(config.MetricsFile, finished); err != nil {
			return fmt.Errorf("writing metrics file: %w", err)
		}
	}
	return nil
}
