package parser

import (
	"encoding/json"
	"fmt"
	"strconv"

	"covid-parser/pkg/source"
)

type domesticPayload struct {
	Data []json.RawMessage `json:"data"`
}

// ParseTable extracts the series described by spec from a domestic payload
// of the form {"data": [table, ...]} where each table is a list of rows and
// cell 0 of a row is its date label.
func ParseTable(payload string, spec source.TableSpec) (Series, error) {
	var doc domesticPayload
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformedSource, err)
	}
	if spec.Table < 0 || spec.Table >= len(doc.Data) {
		return nil, fmt.Errorf("%w: table %d not present (%d tables)", ErrMalformedSource, spec.Table, len(doc.Data))
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(doc.Data[spec.Table], &rows); err != nil {
		return nil, fmt.Errorf("%w: decode table %d: %v", ErrMalformedSource, spec.Table, err)
	}

	series := make(Series, 0, len(rows))
	for i, row := range rows {
		var rec Record
		if len(row) > 0 {
			rec.Date = cellString(row[0])
		}
		if spec.Column < len(row) {
			rec.Value = cellString(row[spec.Column])
		} else if !rec.Blank() {
			return nil, fmt.Errorf("%w: table %d row %d has no column %d", ErrMalformedSource, spec.Table, i, spec.Column)
		}
		series = append(series, rec)
	}

	if spec.Cumulative {
		return Deltas(series), nil
	}
	return series, nil
}

// Deltas turns a series of running totals into daily differences. A day
// whose total, or the previous day's total, is not a number gets
// Unavailable. The first day has no baseline and is always Unavailable.
func Deltas(cumulative Series) Series {
	out := make(Series, len(cumulative))
	for i, rec := range cumulative {
		out[i] = Record{Date: rec.Date, Value: Unavailable}
		if i == 0 {
			continue
		}
		cur, err := ParseCount(rec.Value)
		if err != nil {
			continue
		}
		prev, err := ParseCount(cumulative[i-1].Value)
		if err != nil {
			continue
		}
		out[i].Value = strconv.Itoa(cur - prev)
	}
	return out
}
