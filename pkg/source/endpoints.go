package source

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultDomesticURL   = "https://atlas.jifo.co/api/connectors/0b334273-5661-4837-a639-e3a384d81d20"
	DefaultRecoveriesURL = "https://atlas.jifo.co/api/connectors/1806e38a-75e1-44b3-a9ed-fb384165cabf"
	DefaultForeignURL    = "https://epidemic-stats.com/coronavirus/%s"
)

// Layout locates a series inside a domestic payload: the table within the
// top-level "data" array and the value column within each row.
type Layout struct {
	Table  int `mapstructure:"table"`
	Column int `mapstructure:"column"`
}

// TableSpec is everything the table parser needs for one request.
type TableSpec struct {
	URL    string
	Table  int
	Column int
	// Cumulative series are running totals and are turned into daily deltas.
	Cumulative bool
}

// AnchorPair brackets an embedded array literal in a foreign page.
type AnchorPair struct {
	Open  string
	Close string
}

// Endpoints holds the upstream contract: URLs, table indices and anchors.
// A format change upstream should only touch this struct's values.
type Endpoints struct {
	DomesticURL   string
	RecoveriesURL string
	ForeignURL    string

	National map[DataType]Layout
	// StateTables gives the shared table for per-state cases and deaths.
	StateTables map[DataType]int
	// StateRecoveriesColumn is the cumulative column inside each per-state
	// recoveries table.
	StateRecoveriesColumn int

	Anchors map[DataType]AnchorPair
}

// DefaultEndpoints returns the layout currently published upstream.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		DomesticURL:   DefaultDomesticURL,
		RecoveriesURL: DefaultRecoveriesURL,
		ForeignURL:    DefaultForeignURL,
		National: map[DataType]Layout{
			Cases:      {Table: 3, Column: 1},
			Deaths:     {Table: 11, Column: 1},
			Recoveries: {Table: 43, Column: 5},
		},
		StateTables: map[DataType]int{
			Cases:  7,
			Deaths: 16,
		},
		StateRecoveriesColumn: 3,
		Anchors: map[DataType]AnchorPair{
			Cases:      {Open: "const infected_new = ", Close: "const recovered_new = "},
			Deaths:     {Open: "const deaths_new = ", Close: "const infected_new = "},
			Recoveries: {Open: "const recovered_new = ", Close: "const current_infected = "},
		},
	}
}

// Table resolves the table spec for a domestic descriptor and data type.
func (e Endpoints) Table(d Descriptor, dt DataType) (TableSpec, error) {
	switch d.Kind {
	case KindNational:
		layout, ok := e.National[dt]
		if !ok {
			return TableSpec{}, ErrUnsupportedDataType
		}
		return TableSpec{URL: e.DomesticURL, Table: layout.Table, Column: layout.Column}, nil

	case KindState:
		col, ok := d.Column(dt)
		if !ok {
			return TableSpec{}, ErrUnsupportedDataType
		}
		if dt == Recoveries {
			// one table per state, the descriptor's index selects it
			return TableSpec{
				URL:        e.RecoveriesURL,
				Table:      col,
				Column:     e.StateRecoveriesColumn,
				Cumulative: true,
			}, nil
		}
		table, ok := e.StateTables[dt]
		if !ok {
			return TableSpec{}, ErrUnsupportedDataType
		}
		return TableSpec{URL: e.DomesticURL, Table: table, Column: col}, nil
	}
	return TableSpec{}, fmt.Errorf("%w: kind %s", ErrUnsupportedLocation, d.Kind)
}

// Anchor returns the anchor pair for a foreign series.
func (e Endpoints) Anchor(dt DataType) (AnchorPair, error) {
	a, ok := e.Anchors[dt]
	if !ok {
		return AnchorPair{}, ErrUnsupportedDataType
	}
	return a, nil
}

// ForeignPage builds the page URL for a country slug.
func (e Endpoints) ForeignPage(slug string) string {
	return fmt.Sprintf(e.ForeignURL, url.PathEscape(strings.ToLower(slug)))
}
