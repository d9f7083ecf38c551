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
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/rankings"
)

type ImportConfig struct {
	Path string
	// Year restricts the import to one year. Zero imports every year in the file.
	Year int
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Imports curated yearly artist rankings from a CSV file",
	Long: `The CSV needs artist_name and rank columns, and usually year, dimension and
magnitude. Each year found in the file replaces what is stored for that year,
so importing the same file twice changes nothing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := ImportConfig{
			Path: args[0],
			Year: viper.GetInt("year"),
		}

		if err := importRankings(cmd.Context(), cmd.OutOrStdout(), config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	var year int
	importCmd.Flags().IntVar(&year, "year", 0, "Only import rows for this year")
	viper.BindPFlag("year", importCmd.Flags().Lookup("year"))
}

func importRankings(ctx context.Context, out io.Writer, config ImportConfig) error {
	f, err := os.Open(config.Path)
	if err != nil {
		return fmt.Errorf("opening rankings: %w", err)
	}
	defer f.Close()

	rows, err := rankings.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", config.Path, err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var reports []rankings.ImportReport
	if config.Year != 0 {
		report, err := rankings.ImportYear(ctx, st, rows, config.Year)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	} else {
		reports, err = rankings.ImportAll(ctx, st, rows)
		if err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Year", "Written", "Skipped"})
	for _, r := range reports {
		year := strconv.Itoa(r.Year)
		if r.Year == 0 {
			year = "(none)"
		}
		if err := table.Append([]string{year, strconv.Itoa(r.RecordsWritten), strconv.Itoa(r.RecordsSkipped)}); err != nil {
			return fmt.Errorf("rendering import summary: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering import summary: %w", err)
	}

	for _, r := range reports {
		for _, p := range r.Problems {
			fmt.Fprintf(out, "%s\n", p)
		}
	}
	return nil
}
