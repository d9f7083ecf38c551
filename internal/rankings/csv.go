// Package rankings imports the manually curated annual ranking files.
package rankings

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// canonical header mapping
var headerAliases = map[string]string{
	"artist_name": "artist",
	"artist":      "artist",
	"name":        "artist",

	"rank":     "rank",
	"position": "rank",

	"year": "year",

	"dimension": "dimension",
	"genre":     "dimension",
	"category":  "dimension",

	"magnitude": "magnitude",
	"score":     "magnitude",
}

// Row is one unvalidated line of a ranking file. Values are kept as text so
// that bad rows can be counted rather than rejected by the parser.
type Row struct {
	Line      int
	Artist    string
	Rank      string
	Year      string
	Dimension string
	Magnitude string
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseCSV reads a ranking file. Only an unreadable file or a header without
// artist and rank columns is an error; row content is checked on import.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rawHeaders, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("ranking file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columnMap := make(map[int]string)
	seen := make(map[string]bool)
	for i, h := range rawHeaders {
		if canonical, ok := headerAliases[normalizeHeader(h)]; ok && !seen[canonical] {
			columnMap[i] = canonical
			seen[canonical] = true
		}
	}
	if !seen["artist"] || !seen["rank"] {
		return nil, fmt.Errorf("ranking file needs artist and rank columns, got %q", rawHeaders)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		row := Row{Line: line}
		empty := true
		for i, v := range record {
			field, ok := columnMap[i]
			if !ok {
				continue
			}
			val := strings.TrimSpace(v)
			if val != "" {
				empty = false
			}
			switch field {
			case "artist":
				row.Artist = val
			case "rank":
				row.Rank = val
			case "year":
				row.Year = val
			case "dimension":
				row.Dimension = val
			case "magnitude":
				row.Magnitude = val
			}
		}

		// Skip totally empty rows
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
