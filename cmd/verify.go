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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var errIntegrity = errors.New("database has dangling references")

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Checks the database for dangling references",
	Long:  `Prints row counts and exits non-zero if any row refers to a missing artist or track.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := verify(cmd.Context(), cmd.OutOrStdout()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verify(ctx context.Context, out io.Writer) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.Counts(ctx)
	if err != nil {
		return err
	}
	integrity, err := st.CheckIntegrity(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Table", "Rows", "Dangling"})
	rows := [][]string{
		{"Artist", strconv.FormatInt(counts.Artists, 10), ""},
		{"Track", strconv.FormatInt(counts.Tracks, 10), strconv.FormatInt(integrity.OrphanTracks, 10)},
		{"ListeningEvent", strconv.FormatInt(counts.Events, 10), strconv.FormatInt(integrity.OrphanEvents, 10)},
		{"RankingRecord", strconv.FormatInt(counts.Rankings, 10), strconv.FormatInt(integrity.OrphanRankings, 10)},
		{"TopArtistSnapshot", strconv.FormatInt(counts.TopArtists, 10), strconv.FormatInt(integrity.OrphanSnapshots, 10)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("rendering counts: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering counts: %w", err)
	}

	if !integrity.OK() {
		return errIntegrity
	}
	return nil
}
