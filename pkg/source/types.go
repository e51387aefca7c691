package source

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedDataType is returned for data types other than cases, deaths and recoveries.
	ErrUnsupportedDataType = errors.New("unsupported data_type")
	// ErrUnsupportedLocation is returned when a location cannot be served by any source.
	ErrUnsupportedLocation = errors.New("unsupported location")
)

// DataType names one of the published series.
type DataType string

const (
	Cases      DataType = "cases"
	Deaths     DataType = "deaths"
	Recoveries DataType = "recoveries"
)

// DataTypes lists the supported data types in display order.
var DataTypes = []DataType{Cases, Deaths, Recoveries}

// ParseDataType lowercases s and checks it against the supported set.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	switch dt {
	case Cases, Deaths, Recoveries:
		return dt, nil
	}
	return "", ErrUnsupportedDataType
}

func (d DataType) String() string {
	return string(d)
}

// Kind selects the extraction strategy for a domestic location.
type Kind int

const (
	// KindNational reads whole-country series from the shared payload.
	KindNational Kind = iota
	// KindState reads one state's column from the shared multi-state payload.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindNational:
		return "national"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Descriptor describes one supported domestic location.
type Descriptor struct {
	Code    string
	Name    string
	Kind    Kind
	Columns map[DataType]int
}

// Column returns the per-data-type index for the location.
func (d Descriptor) Column(dt DataType) (int, bool) {
	col, ok := d.Columns[dt]
	return col, ok
}
