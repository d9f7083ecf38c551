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
	"regexp"
	"strconv"
	"time"

	"github.com/ademuri/listening-identity/internal/store"
)

// ParsedDate is a date argument and the precision it was given with.
// Relative dates ("30d", "6m") count back from now and have no precision.
type ParsedDate struct {
	Date     time.Time
	Year     bool
	Month    bool
	Day      bool
	Relative bool
}

var (
	yearPattern     = regexp.MustCompile(`^\d{4}$`)
	monthPattern    = regexp.MustCompile(`^\d{4}-\d{2}$`)
	dayPattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	relativePattern = regexp.MustCompile(`^(\d+)([dwmy])$`)
)

// parseDateRangeFromArgs turns one or two date arguments into a half-open
// range [start, end).
func parseDateRangeFromArgs(args []string) (start time.Time, end time.Time, err error) {
	switch len(args) {
	case 1:
		start, end, err = getImplicitDateRange(args[0])

	case 2:
		start, end, err = getExplicitDateRange(args[0], args[1])

	default:
		err = fmt.Errorf("Expected one or two date arguments")
	}
	return
}

// getImplicitDateRange covers the whole period named by ds: a year, a month,
// a day, or from a relative date until now.
func getImplicitDateRange(ds string) (start time.Time, end time.Time, err error) {
	date, err := parseSingleDatestring(ds)
	if err != nil {
		return
	}

	start = date.Date
	switch {
	case date.Year:
		end = start.AddDate(1, 0, 0)

	case date.Month:
		end = start.AddDate(0, 1, 0)

	case date.Day:
		end = start.AddDate(0, 0, 1)

	case date.Relative:
		end = time.Now().UTC()

	default:
		err = fmt.Errorf("Invalid format: %q", ds)
	}

	return
}

func getExplicitDateRange(startString, endString string) (start time.Time, end time.Time, err error) {
	startParsed, err := parseSingleDatestring(startString)
	if err != nil {
		return
	}
	start = startParsed.Date

	endParsed, err := parseSingleDatestring(endString)
	if err != nil {
		return
	}
	end = endParsed.Date

	if !end.After(start) {
		err = fmt.Errorf("End %q is not after start %q", endString, startString)
	}
	return
}

func parseSingleDatestring(ds string) (date ParsedDate, err error) {
	switch {
	case yearPattern.MatchString(ds):
		date.Date, err = time.Parse("2006", ds)
		if err != nil {
			err = fmt.Errorf("Parsing datestring as year: %w", err)
			return
		}
		date.Year = true

	case monthPattern.MatchString(ds):
		date.Date, err = time.Parse("2006-01", ds)
		if err != nil {
			err = fmt.Errorf("Parsing datestring as month: %w", err)
			return
		}
		date.Month = true

	case dayPattern.MatchString(ds):
		date.Date, err = time.Parse("2006-01-02", ds)
		if err != nil {
			err = fmt.Errorf("Parsing datestring as day: %w", err)
			return
		}
		date.Day = true

	case relativePattern.MatchString(ds):
		m := relativePattern.FindStringSubmatch(ds)
		amount, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			err = fmt.Errorf("Parsing relative datestring: %w", convErr)
			return
		}
		now := time.Now().UTC()
		switch m[2] {
		case "d":
			date.Date = now.AddDate(0, 0, -amount)
		case "w":
			date.Date = now.AddDate(0, 0, -amount*7)
		case "m":
			date.Date = now.AddDate(0, -amount, 0)
		case "y":
			date.Date = now.AddDate(-amount, 0, 0)
		}
		date.Relative = true

	default:
		err = fmt.Errorf("Invalid format: %q", ds)
	}
	return
}

// spanReader is the part of the store needed to find the stored history.
type spanReader interface {
	ListenSpan(ctx context.Context) (first, last time.Time, ok bool, err error)
	RankingRecords(ctx context.Context) ([]store.RankingRecord, error)
}

// storedDateRange covers every stored listen and every ranked year, rounded
// out to whole years. ok is false when nothing is stored.
func storedDateRange(ctx context.Context, r spanReader) (start time.Time, end time.Time, ok bool, err error) {
	first, last, ok, err := r.ListenSpan(ctx)
	if err != nil {
		return
	}
	lo, hi := 0, 0
	if ok {
		lo, hi = first.Year(), last.Year()
	}

	records, err := r.RankingRecords(ctx)
	if err != nil {
		return
	}
	for _, rec := range records {
		if lo == 0 || rec.Year < lo {
			lo = rec.Year
		}
		if rec.Year > hi {
			hi = rec.Year
		}
	}
	if lo == 0 {
		return time.Time{}, time.Time{}, false, nil
	}

	start = time.Date(lo, 1, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(hi+1, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, end, true, nil
}
