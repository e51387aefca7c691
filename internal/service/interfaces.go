package service

import (
	"context"

	"covid-parser/pkg/extractor"
	"covid-parser/pkg/source"
)

// PayloadCache is the fetch cache as seen by the dispatch layer.
type PayloadCache interface {
	Get(ctx context.Context, url string) (string, error)
}

// Recorder observes dispatch outcomes.
type Recorder interface {
	ObserveRequest(op, status string, severity int)
}

// Dispatcher is what the HTTP handler and the CLI depend on.
type Dispatcher interface {
	New(ctx context.Context, location, dataType string, rng extractor.RangeSpec, includeDate bool) (Envelope, error)
	Total(ctx context.Context, location, dataType string, rng extractor.RangeSpec) (Envelope, error)
	Summary(ctx context.Context, dataType string) ([]LocationResult, error)
	Registry() *source.Registry
}

var _ Dispatcher = (*Service)(nil)
