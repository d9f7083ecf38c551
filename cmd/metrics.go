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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/listening-identity/internal/metrics"
	"github.com/ademuri/listening-identity/internal/report"
	"github.com/ademuri/listening-identity/internal/store"
)

type MetricsConfig struct {
	Start  time.Time
	End    time.Time
	Format string
}

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics [from] [to]",
	Short: "Computes identity metrics over the stored history",
	Long: `Prints yearly artist diversity, how many years each artist persisted, each
artist's peak year and how stable their listening is.

Dates are yyyy, yyyy-mm, yyyy-mm-dd or relative (30d, 12w, 6m, 2y). A single
date covers that whole period. With no dates, the whole stored history is used.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := MetricsConfig{
			Format: viper.GetString("format"),
		}
		if len(args) > 0 {
			var err error
			config.Start, config.End, err = parseDateRangeFromArgs(args)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}

		if err := printMetrics(cmd.Context(), cmd.OutOrStdout(), config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	var format string
	metricsCmd.Flags().StringVar(&format, "format", "table", "Output format: table, yaml, json or html")
	viper.BindPFlag("format", metricsCmd.Flags().Lookup("format"))
}

func printMetrics(ctx context.Context, out io.Writer, config MetricsConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := computeSnapshot(ctx, st, config.Start, config.End)
	if err != nil {
		return err
	}
	return report.Render(out, snap, config.Format)
}

// metricsOptions reads the score and stability settings from the config
// file, e.g.
//
//	score:
//	  rank_weight: 2
//	stability:
//	  min_tracks: 5
//	  session_gap: 45m
func metricsOptions() (metrics.Options, error) {
	opts := metrics.DefaultOptions()
	opts.AliasThreshold = viper.GetFloat64("alias_threshold")

	weights := metrics.DefaultWeights()
	if err := viper.UnmarshalKey("score", &weights); err != nil {
		return opts, fmt.Errorf("reading score config: %w", err)
	}
	opts.Score = metrics.WeightedScore(weights)

	if err := viper.UnmarshalKey("stability", &opts.Stability); err != nil {
		return opts, fmt.Errorf("reading stability config: %w", err)
	}
	return opts, nil
}

// computeSnapshot loads [start, end) and computes every metric over it. A
// zero start uses the whole stored history.
func computeSnapshot(ctx context.Context, st *store.Store, start, end time.Time) (metrics.Snapshot, error) {
	opts, err := metricsOptions()
	if err != nil {
		return metrics.Snapshot{}, err
	}

	if start.IsZero() {
		var ok bool
		start, end, ok, err = storedDateRange(ctx, st)
		if err != nil {
			return metrics.Snapshot{}, fmt.Errorf("finding stored history: %w", err)
		}
		if !ok {
			return metrics.Snapshot{}, fmt.Errorf("no listening events or rankings stored in %s, run collect or import first", viper.GetString("database"))
		}
	}

	ds, err := metrics.Load(ctx, st, start, end)
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("loading %s to %s: %w", start.Format("2006-01-02"), end.Format("2006-01-02"), err)
	}
	return metrics.Compute(ds, opts), nil
}
