package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"covid-parser/pkg/extractor"
	"covid-parser/pkg/logger"
	"covid-parser/pkg/parser"
	"covid-parser/pkg/source"
)

// Default ranges used when a caller does not specify one.
var (
	DefaultNewRange   = extractor.LastDays(2)
	DefaultTotalRange = extractor.Everything()
)

// Service resolves locations and runs the fetch, extract and window
// pipeline for each request.
type Service struct {
	cache     PayloadCache
	registry  *source.Registry
	endpoints source.Endpoints
	recorder  Recorder
	log       *logger.Logger
}

type Option func(*Service)

// WithEndpoints overrides the upstream layout.
func WithEndpoints(e source.Endpoints) Option {
	return func(s *Service) { s.endpoints = e }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger used for classified failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.WithField("component", "dispatch") }
}

func New(cache PayloadCache, opts ...Option) *Service {
	s := &Service{
		cache:     cache,
		registry:  source.NewRegistry(),
		endpoints: source.DefaultEndpoints(),
		log:       logger.GetLogger().WithField("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the location registry used for dispatch.
func (s *Service) Registry() *source.Registry {
	return s.registry
}

// request is one normalized call into the pipeline.
type request struct {
	op          string
	location    string
	code        string
	descriptor  source.Descriptor
	domestic    bool
	dataType    string
	dateRange   extractor.RangeSpec
	includeDate bool
}

func (s *Service) newRequest(op, location, dataType string, rng extractor.RangeSpec, includeDate bool) request {
	code, d, domestic := s.registry.Lookup(location)
	return request{
		op:          op,
		location:    location,
		code:        code,
		descriptor:  d,
		domestic:    domestic,
		dataType:    dataType,
		dateRange:   rng,
		includeDate: includeDate,
	}
}

// New returns the per-day figures for location, newest first. The only
// error returned is a failed fetch of a domestic source (ErrTransport);
// every other failure is reported through the envelope.
func (s *Service) New(ctx context.Context, location, dataType string, rng extractor.RangeSpec, includeDate bool) (Envelope, error) {
	req := s.newRequest("new", location, dataType, rng, includeDate)

	items, err := s.collect(ctx, req)
	if err != nil {
		return s.fail(req, err)
	}

	content, err := json.Marshal(items)
	if err != nil {
		return s.fail(req, err)
	}
	return s.finish(req, ok(string(content))), nil
}

// Total sums the per-day figures over rng. Values that are not numbers
// count as zero, whereas New leaves them in place.
func (s *Service) Total(ctx context.Context, location, dataType string, rng extractor.RangeSpec) (Envelope, error) {
	req := s.newRequest("total", location, dataType, rng, false)

	items, err := s.collect(ctx, req)
	if err != nil {
		return s.fail(req, err)
	}
	return s.finish(req, ok(strconv.Itoa(extractor.Sum(items)))), nil
}

// LocationResult is one row of a Summary.
type LocationResult struct {
	Code   string   `json:"code" yaml:"code"`
	Name   string   `json:"name" yaml:"name"`
	Result Envelope `json:"result" yaml:"result"`
}

// Summary returns the latest two days of dataType for every domestic
// location, in registry order.
func (s *Service) Summary(ctx context.Context, dataType string) ([]LocationResult, error) {
	descriptors := s.registry.Descriptors()
	results := make([]LocationResult, len(descriptors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, d := range descriptors {
		g.Go(func() error {
			env, err := s.New(gctx, d.Code, dataType, DefaultNewRange, true)
			if err != nil {
				return fmt.Errorf("%s: %w", d.Code, err)
			}
			results[i] = LocationResult{Code: d.Code, Name: d.Name, Result: env}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collect runs fetch, extract and window for req.
func (s *Service) collect(ctx context.Context, req request) ([]extractor.Item, error) {
	dt, err := source.ParseDataType(req.dataType)
	if err != nil {
		return nil, err
	}
	if req.dateRange.Kind != extractor.Days && req.dateRange.Kind != extractor.All {
		return nil, fmt.Errorf("%w: %q", extractor.ErrUnsupportedDateRange, req.dateRange.Kind)
	}

	if req.domestic {
		// row 0 of a domestic table is its header
		series, err := s.domesticSeries(ctx, req.descriptor, dt)
		if err != nil {
			return nil, err
		}
		return extractor.WindowHeaded(series, req.dateRange, req.includeDate)
	}

	series, err := s.foreignSeries(ctx, req.code, dt)
	if err != nil {
		return nil, err
	}
	return extractor.Window(series, req.dateRange, req.includeDate)
}

func (s *Service) domesticSeries(ctx context.Context, d source.Descriptor, dt source.DataType) (parser.Series, error) {
	spec, err := s.endpoints.Table(d, dt)
	if err != nil {
		return nil, err
	}
	payload, err := s.cache.Get(ctx, spec.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return parser.ParseTable(payload, spec)
}

// foreignSeries treats any fetch failure as an unknown country: a missing
// page and an unreachable host look the same from here.
func (s *Service) foreignSeries(ctx context.Context, slug string, dt source.DataType) (parser.Series, error) {
	anchors, err := s.endpoints.Anchor(dt)
	if err != nil {
		return nil, err
	}
	payload, err := s.cache.Get(ctx, s.endpoints.ForeignPage(slug))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", source.ErrUnsupportedLocation, slug, err)
	}
	return parser.ParseEmbedded(payload, anchors)
}

func (s *Service) fail(req request, err error) (Envelope, error) {
	fields := map[string]interface{}{
		"op":         req.op,
		"location":   req.location,
		"data_type":  req.dataType,
		"date_range": req.dateRange.String(),
	}

	if req.domestic && isTransport(err) {
		s.log.WithError(err).WithFields(fields).Error("Domestic fetch failed")
		s.observe(req.op, StatusError, SeverityUnlogged)
		return Envelope{}, err
	}

	env := classify(err)
	if env.Content == msgUnsupportedDataType || env.Content == msgUnsupportedDateRange {
		s.log.WithFields(fields).Warn(env.Content)
	}
	return s.finish(req, env), nil
}

// finish applies severity routing and records the outcome.
func (s *Service) finish(req request, env Envelope) Envelope {
	msgs := domesticMessages
	if !req.domestic {
		msgs = foreignMessages
	}

	routed := env
	switch {
	case env.Classified <= SeverityVisible:
	case env.Classified == SeverityLogged:
		s.log.WithFields(map[string]interface{}{
			"op":         req.op,
			"location":   req.location,
			"data_type":  req.dataType,
			"status":     env.Status,
			"content":    env.Content,
			"classified": int(env.Classified),
		}).Error("Request failed")
		routed = failed(msgs.seeLogs, SeverityVisible)
	default:
		routed = failed(msgs.notLogged, SeverityVisible)
	}

	s.observe(req.op, env.Status, env.Classified)
	return routed
}

func (s *Service) observe(op, status string, sev Severity) {
	if s.recorder != nil {
		s.recorder.ObserveRequest(op, status, int(sev))
	}
}
