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
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Lists recent collection runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("count")
		if err := listRuns(cmd.Context(), cmd.OutOrStdout(), limit); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntP("count", "n", 20, "Number of runs to show")
}

func listRuns(ctx context.Context, out io.Writer, limit int) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No collection runs yet.")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Started", "Finished", "Added", "Skipped", "Errors", "Notes"})
	for _, r := range runs {
		finished := "running"
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04:05")
		}
		row := []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			finished,
			strconv.Itoa(r.EventsAdded),
			strconv.Itoa(r.EventsSkipped),
			strconv.Itoa(r.Errors),
			r.Notes,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("rendering runs: %w", err)
		}
	}
	return table.Render()
}
