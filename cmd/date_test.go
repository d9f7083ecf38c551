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
	"strings"
	"testing"
	"time"

	"github.com/ademuri/listening-identity/internal/store"
)

func TestGetImplicitDateRange_year(t *testing.T) {
	doTestGetImplicitDateRange(t, "2020", "2021", "2006")
}

func TestGetImplicitDateRange_month(t *testing.T) {
	doTestGetImplicitDateRange(t, "2020-12", "2021-01", "2006-01")
}

func TestGetImplicitDateRange_day(t *testing.T) {
	doTestGetImplicitDateRange(t, "2020-02-28", "2020-02-29", "2006-01-02")
}

func TestGetImplicitDateRange_invalid(t *testing.T) {
	for _, ds := range []string{"2020-01-0123", "not_real", "30x"} {
		_, _, err := getImplicitDateRange(ds)
		if err == nil {
			t.Fatalf("Expected error parsing %q", ds)
		}
		if !strings.Contains(err.Error(), "Invalid format") {
			t.Fatalf("Should have error with invalid format: %v", err)
		}
	}
}

func TestParseSingleDatestring_RelativeOverflow(t *testing.T) {
	_, err := parseSingleDatestring("99999999999999999999d")
	if err == nil || !strings.Contains(err.Error(), "Parsing relative datestring") {
		t.Fatalf("Expected an error for an out of range amount, got %v", err)
	}
	if _, _, err := getImplicitDateRange("99999999999999999999d"); err == nil {
		t.Fatalf("Expected getImplicitDateRange to fail")
	}
}

func TestGetImplicitDateRange_relative(t *testing.T) {
	start, end, err := getImplicitDateRange("2w")
	if err != nil {
		t.Fatalf("getImplicitDateRange: %v", err)
	}
	if diff := end.Sub(start) - 14*24*time.Hour; diff < -time.Second || diff > time.Second {
		t.Errorf("Expected a two week range, got %s to %s", start, end)
	}
}

func doTestGetImplicitDateRange(t *testing.T, startString string, endString string, format string) {
	start, end, err := getImplicitDateRange(startString)
	if err != nil {
		t.Fatalf("Parsing date string: %v", err)
	}

	expectedStart, err := time.Parse(format, startString)
	if err != nil {
		t.Fatalf("Constructing expectedStart: %v", err)
	}

	expectedEnd, err := time.Parse(format, endString)
	if err != nil {
		t.Fatalf("Constructing expectedEnd: %v", err)
	}

	if !start.Equal(expectedStart) {
		t.Fatalf("Expected start to be %q, got %q", expectedStart, start)
	}

	if !end.Equal(expectedEnd) {
		t.Fatalf("Expected end to be %q, got %q", expectedEnd, end)
	}
}

func TestGetExplicitDateRange_valid(t *testing.T) {
	start, end, err := getExplicitDateRange("2020", "2020-02-01")
	if err != nil {
		t.Fatalf("getExplicitDateRange: %v", err)
	}

	if want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Fatalf("Expected start to be %q, got %q", want, start)
	}
	if want := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Fatalf("Expected end to be %q, got %q", want, end)
	}
}

func TestGetExplicitDateRange_invalid(t *testing.T) {
	if _, _, err := getExplicitDateRange("2020", "abc"); err == nil {
		t.Fatalf("Expected error when parsing invalid datestring")
	}
	if _, _, err := getExplicitDateRange("2021", "2020"); err == nil {
		t.Fatalf("Expected error when end is before start")
	}
}

func TestParseSingleDatestring_Relative(t *testing.T) {
	tests := []struct {
		input  string
		unit   string
		amount int
	}{
		{"30d", "d", 30},
		{"12w", "w", 12},
		{"6m", "m", 6},
		{"10y", "y", 10},
	}

	for _, tc := range tests {
		pd, err := parseSingleDatestring(tc.input)
		if err != nil {
			t.Errorf("parseSingleDatestring(%q) returned error: %v", tc.input, err)
			continue
		}
		if !pd.Relative {
			t.Errorf("parseSingleDatestring(%q) should be relative", tc.input)
		}

		now := time.Now()
		var expected time.Time
		switch tc.unit {
		case "d":
			expected = now.AddDate(0, 0, -tc.amount)
		case "w":
			expected = now.AddDate(0, 0, -tc.amount*7)
		case "m":
			expected = now.AddDate(0, -tc.amount, 0)
		case "y":
			expected = now.AddDate(-tc.amount, 0, 0)
		}

		// Within a second of the expected time.
		diff := pd.Date.Sub(expected)
		if diff < -time.Second || diff > time.Second {
			t.Errorf("parseSingleDatestring(%q) = %v; want approx %v", tc.input, pd.Date, expected)
		}
	}
}

type fakeSpan struct {
	first, last time.Time
	ok          bool
	records     []store.RankingRecord
}

func (f fakeSpan) ListenSpan(ctx context.Context) (time.Time, time.Time, bool, error) {
	return f.first, f.last, f.ok, nil
}

func (f fakeSpan) RankingRecords(ctx context.Context) ([]store.RankingRecord, error) {
	return f.records, nil
}

func TestStoredDateRange(t *testing.T) {
	ctx := context.Background()

	_, _, ok, err := storedDateRange(ctx, fakeSpan{})
	if err != nil || ok {
		t.Fatalf("Expected no range for an empty store, got ok=%v err=%v", ok, err)
	}

	span := fakeSpan{
		first:   time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		last:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		ok:      true,
		records: []store.RankingRecord{{Year: 2019}, {Year: 2021}},
	}
	start, end, ok, err := storedDateRange(ctx, span)
	if err != nil || !ok {
		t.Fatalf("storedDateRange: ok=%v err=%v", ok, err)
	}
	if start.Year() != 2019 || end.Year() != 2024 || end.YearDay() != 1 {
		t.Errorf("Expected 2019 to 2024, got %s to %s", start, end)
	}

	start, end, ok, _ = storedDateRange(ctx, fakeSpan{records: []store.RankingRecord{{Year: 2020}}})
	if !ok || start.Year() != 2020 || end.Year() != 2021 {
		t.Errorf("Expected rankings alone to give 2020, got %s to %s", start, end)
	}
}
