// Package report renders a metrics snapshot for people: terminal tables,
// YAML, JSON, or an HTML fragment suitable for email.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/ademuri/listening-identity/internal/metrics"
)

var Formats = []string{"table", "yaml", "json", "html"}

// Render writes snap to out in the named format.
func Render(out io.Writer, snap metrics.Snapshot, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return Table(out, snap)
	case "yaml":
		return YAML(out, snap)
	case "json":
		return JSON(out, snap)
	case "html":
		return HTML(out, snap)
	default:
		return fmt.Errorf("unknown format %q, expected one of %s", format, strings.Join(Formats, ", "))
	}
}

func YAML(out io.Writer, snap metrics.Snapshot) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return encoder.Close()
}

func JSON(out io.Writer, snap metrics.Snapshot) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

// Section is one titled table of a snapshot.
type Section struct {
	Title   string
	Header  []string
	Rows    [][]string
	Summary string
}

// Sections lays the snapshot out as tables in a fixed order.
func Sections(snap metrics.Snapshot) []Section {
	diversity := Section{Title: "Diversity", Header: []string{"Year", "Artists", "Live", "Ranked"}}
	for _, r := range snap.Diversity.Rows {
		diversity.Rows = append(diversity.Rows, []string{
			strconv.Itoa(r.Year), strconv.Itoa(r.Artists), strconv.Itoa(r.LiveArtists), strconv.Itoa(r.RankedArtists),
		})
	}

	dimensions := Section{Title: "Dimensions", Header: []string{"Year", "Dimension", "Songs", "Share"}}
	for _, d := range snap.Dimensions {
		dimensions.Rows = append(dimensions.Rows, []string{
			strconv.Itoa(d.Year), d.Dimension, strconv.Itoa(d.Songs), strconv.FormatFloat(100*d.Share, 'f', 1, 64) + "%",
		})
	}

	persistence := Section{Title: "Persistence", Header: []string{"Artist", "Years", "Present"}}
	for _, p := range snap.Persistence {
		persistence.Rows = append(persistence.Rows, []string{p.Artist, strconv.Itoa(p.Count), joinYears(p.Years)})
	}

	peaks := Section{Title: "Peak years", Header: []string{"Artist", "Peak", "Score"}}
	for _, p := range snap.Peaks {
		peaks.Rows = append(peaks.Rows, []string{p.Artist, strconv.Itoa(p.Year), formatFloat(p.Score)})
	}

	stability := Section{
		Title:  "Stability",
		Header: []string{"Artist", "Tracks", "Sessions", "Feature var", "Temporal var", "Index"},
	}
	for _, a := range snap.Stability.Artists {
		stability.Rows = append(stability.Rows, []string{
			a.Artist, strconv.Itoa(a.Tracks), strconv.Itoa(a.Sessions),
			formatFloat(a.FeatureVariance), formatFloat(a.TemporalVariance), formatFloat(a.Index),
		})
	}
	g := snap.Stability.Global
	if g.Insufficient {
		stability.Summary = "Global stability: insufficient data"
	} else {
		stability.Summary = fmt.Sprintf("Global stability: %s over %d artists", formatFloat(g.Index), g.Artists)
	}
	if n := len(snap.Stability.Insufficient); n > 0 {
		stability.Summary += fmt.Sprintf("; %d artists with insufficient data", n)
	}

	sections := []Section{diversity, dimensions, persistence, peaks, stability}

	if len(snap.Aliases) > 0 {
		aliases := Section{Title: "Joined names", Header: []string{"Ranking name", "Live artist"}}
		from := make([]string, 0, len(snap.Aliases))
		for k := range snap.Aliases {
			from = append(from, k)
		}
		sort.Strings(from)
		for _, k := range from {
			aliases.Rows = append(aliases.Rows, []string{k, snap.Aliases[k]})
		}
		sections = append(sections, aliases)
	}
	return sections
}

func Table(out io.Writer, snap metrics.Snapshot) error {
	fmt.Fprintf(out, "%d events, %d ranking records, %s to %s\n\n",
		snap.Events, snap.Rankings, snap.From.Format("2006-01-02"), snap.To.Format("2006-01-02"))

	for _, s := range Sections(snap) {
		fmt.Fprintf(out, "%s\n", s.Title)
		if len(s.Rows) == 0 {
			fmt.Fprintln(out, "No data.")
		} else {
			table := tablewriter.NewWriter(out)
			table.Header(s.Header)
			for _, row := range s.Rows {
				if err := table.Append(row); err != nil {
					return fmt.Errorf("rendering %s: %w", s.Title, err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("rendering %s: %w", s.Title, err)
			}
		}
		if s.Summary != "" {
			fmt.Fprintln(out, s.Summary)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
