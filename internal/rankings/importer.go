package rankings

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ademuri/listening-identity/internal/reconcile"
	"github.com/ademuri/listening-identity/internal/store"
)

// DefaultDimension is used for rows without a dimension.
const DefaultDimension = "unspecified"

// Writer is the part of the store the importer needs.
type Writer interface {
	ReplaceRankingYear(ctx context.Context, year int, records []store.RankingRecord) (int, error)
}

type ImportReport struct {
	Year           int     `json:"year" yaml:"year"`
	RecordsWritten int     `json:"records_written" yaml:"records_written"`
	RecordsSkipped int     `json:"records_skipped" yaml:"records_skipped"`
	Problems       []error `json:"-" yaml:"-"`
}

// ImportYear replaces the stored rankings for year with the valid rows. Rows
// naming the same artist and dimension are one song each and are merged into a
// single record. Bad rows are skipped and reported in Problems; when no valid
// row remains the stored year is left as it is. The returned error is non-nil
// only when the store fails, in which case nothing for the year changed.
func ImportYear(ctx context.Context, w Writer, rows []Row, year int) (ImportReport, error) {
	report := ImportReport{Year: year}

	type key struct{ artist, dimension string }
	merged := make(map[key]*store.RankingRecord)
	rankSums := make(map[key]int)
	var order []key

	for _, row := range rows {
		record, err := toRecord(row, year)
		if err != nil {
			report.RecordsSkipped++
			report.Problems = append(report.Problems, fmt.Errorf("line %d: %w", row.Line, err))
			continue
		}

		k := key{reconcile.Normalize(record.Artist), record.Dimension}
		rankSums[k] += record.Rank
		existing, ok := merged[k]
		if !ok {
			merged[k] = &record
			order = append(order, k)
			continue
		}
		existing.Songs++
		existing.Rank = min(existing.Rank, record.Rank)
		existing.Magnitude += record.Magnitude
	}

	if len(order) == 0 {
		report.Problems = append(report.Problems, fmt.Errorf("no valid rows for %d, stored rankings left unchanged", year))
		return report, nil
	}

	records := make([]store.RankingRecord, 0, len(order))
	for _, k := range order {
		r := *merged[k]
		r.MeanRank = float64(rankSums[k]) / float64(r.Songs)
		records = append(records, r)
	}

	written, err := w.ReplaceRankingYear(ctx, year, records)
	if err != nil {
		return report, fmt.Errorf("importing %d: %w", year, err)
	}
	report.RecordsWritten = written
	return report, nil
}

// ImportAll imports every year found in rows. Rows without a usable year are
// reported under year 0.
func ImportAll(ctx context.Context, w Writer, rows []Row) ([]ImportReport, error) {
	byYear := make(map[int][]Row)
	var bad ImportReport
	for _, row := range rows {
		year, err := strconv.Atoi(row.Year)
		if err != nil {
			bad.RecordsSkipped++
			bad.Problems = append(bad.Problems, fmt.Errorf("line %d: %w", row.Line,
				&store.ValidationError{Field: "year", Value: row.Year, Reason: "not a number"}))
			continue
		}
		byYear[year] = append(byYear[year], row)
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	var reports []ImportReport
	if bad.RecordsSkipped > 0 {
		reports = append(reports, bad)
	}
	for _, year := range years {
		report, err := ImportYear(ctx, w, byYear[year], year)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func toRecord(row Row, year int) (store.RankingRecord, error) {
	if row.Artist == "" {
		return store.RankingRecord{}, &store.ValidationError{Field: "artist", Value: row.Artist, Reason: "missing"}
	}

	rank, err := strconv.Atoi(row.Rank)
	if err != nil {
		return store.RankingRecord{}, &store.ValidationError{Field: "rank", Value: row.Rank, Reason: "not a number"}
	}
	if rank < 1 {
		return store.RankingRecord{}, &store.ValidationError{Field: "rank", Value: rank, Reason: "must be at least 1"}
	}

	// A blank year belongs to the year being imported.
	if row.Year != "" {
		y, err := strconv.Atoi(row.Year)
		if err != nil {
			return store.RankingRecord{}, &store.ValidationError{Field: "year", Value: row.Year, Reason: "not a number"}
		}
		if y != year {
			return store.RankingRecord{}, &store.ValidationError{Field: "year", Value: y, Reason: fmt.Sprintf("expected %d", year)}
		}
	}

	var magnitude float64
	if row.Magnitude != "" {
		magnitude, err = strconv.ParseFloat(row.Magnitude, 64)
		if err != nil || math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
			return store.RankingRecord{}, &store.ValidationError{Field: "magnitude", Value: row.Magnitude, Reason: "not a number"}
		}
	}

	dimension := row.Dimension
	if dimension == "" {
		dimension = DefaultDimension
	}

	record := store.RankingRecord{
		Artist:    row.Artist,
		Year:      year,
		Dimension: dimension,
		Rank:      rank,
		Songs:     1,
		Magnitude: magnitude,
	}
	return record, record.Validate()
}
