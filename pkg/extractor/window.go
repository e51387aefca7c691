package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"covid-parser/pkg/parser"
)

// ErrUnsupportedDateRange is returned for range kinds other than days and all.
var ErrUnsupportedDateRange = errors.New("unsupported date_range")

// RangeKind selects how much of a series Window returns.
type RangeKind string

const (
	Days RangeKind = "days"
	All  RangeKind = "all"
)

// RangeSpec is a requested date range. Count only applies to Days.
type RangeSpec struct {
	Kind  RangeKind `json:"type" yaml:"type"`
	Count int       `json:"value" yaml:"value"`
}

// LastDays is a Days range of n.
func LastDays(n int) RangeSpec {
	return RangeSpec{Kind: Days, Count: n}
}

// Everything is the All range.
func Everything() RangeSpec {
	return RangeSpec{Kind: All}
}

func (r RangeSpec) String() string {
	if r.Kind == Days {
		return fmt.Sprintf("%s:%d", r.Kind, r.Count)
	}
	return string(r.Kind)
}

// ParseRange reads "kind[:value]", e.g. "days:7" or "all". The kind is not
// validated here; Window rejects unknown kinds.
func ParseRange(s string) (RangeSpec, error) {
	kind, value, hasValue := strings.Cut(strings.TrimSpace(s), ":")
	spec := RangeSpec{Kind: RangeKind(strings.ToLower(strings.TrimSpace(kind)))}
	if spec.Kind == "" {
		return RangeSpec{}, fmt.Errorf("empty date range")
	}
	if hasValue {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid date range value %q: %w", value, err)
		}
		spec.Count = n
	}
	return spec, nil
}

// Item is one windowed value, optionally paired with its date. It encodes
// as a bare value, or as a [date, value] pair when the date is included.
type Item struct {
	Date     string
	Value    string
	WithDate bool
}

func (i Item) MarshalJSON() ([]byte, error) {
	if i.WithDate {
		return json.Marshal([2]string{i.Date, i.Value})
	}
	return json.Marshal(i.Value)
}

func (i Item) MarshalYAML() (interface{}, error) {
	if i.WithDate {
		return []string{i.Date, i.Value}, nil
	}
	return i.Value, nil
}

// Window walks series from newest to oldest and returns the requested
// records, newest first. Records with a blank date label are skipped and do
// not count toward a Days limit. All leaves out the oldest element of every
// series, domestic or foreign, treating it as a baseline row; a foreign
// series therefore loses its first real value under All. A Days range may
// reach the oldest element.
func Window(series parser.Series, spec RangeSpec, includeDate bool) ([]Item, error) {
	return window(series, spec, includeDate, 0)
}

// WindowHeaded is Window for series whose oldest element is a table header
// row. Neither range kind returns that row.
func WindowHeaded(series parser.Series, spec RangeSpec, includeDate bool) ([]Item, error) {
	return window(series, spec, includeDate, 1)
}

// window stops a Days walk at index first.
func window(series parser.Series, spec RangeSpec, includeDate bool, first int) ([]Item, error) {
	var oldest, limit int
	switch spec.Kind {
	case Days:
		oldest, limit = first, spec.Count
	case All:
		oldest, limit = 1, len(series)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDateRange, spec.Kind)
	}

	out := make([]Item, 0, max(0, min(limit, len(series)-oldest)))
	for i := len(series) - 1; i >= oldest && len(out) < limit; i-- {
		rec := series[i]
		if rec.Blank() {
			continue
		}
		out = append(out, Item{Date: rec.Date, Value: rec.Value, WithDate: includeDate})
	}
	return out, nil
}

// Sum adds the values of items as integers. Values that are not numbers
// count as zero.
func Sum(items []Item) int {
	total := 0
	for _, it := range items {
		n, err := parser.ParseCount(it.Value)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
