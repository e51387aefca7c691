package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"

	"covid-parser/internal/service"
	"covid-parser/pkg/extractor"
	"covid-parser/pkg/logger"
	"covid-parser/pkg/source"
	"covid-parser/pkg/storage"
)

const requestIDHeader = "X-Request-ID"

// CacheInspector is the read-only view of the fetch cache served on
// /api/v1/cache.
type CacheInspector interface {
	Stats() storage.CacheStats
	Entries() []storage.CacheEntry
}

type Controller struct {
	dispatcher service.Dispatcher
	cache      CacheInspector
	metrics    http.Handler
	log        *logger.Logger
	started    time.Time
}

type StatusResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`
	Health    map[string]bool        `json:"health"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type LocationInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type LocationsResponse struct {
	Locations []LocationInfo    `json:"locations"`
	Aliases   map[string]string `json:"aliases"`
}

type CacheResponse struct {
	Stats   storage.CacheStats   `json:"stats"`
	Entries []storage.CacheEntry `json:"entries"`
}

// NewController wires the dispatcher into HTTP handlers. cache and metrics
// may be nil, which disables their routes.
func NewController(dispatcher service.Dispatcher, cache CacheInspector, metrics http.Handler, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Controller{
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    metrics,
		log:        log.WithField("component", "http"),
		started:    time.Now(),
	}
}

// App builds the fiber application.
func (c *Controller) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "covid-parser",
		DisableStartupMessage: true,
		ErrorHandler:          c.handleError,
	})
	app.Use(c.requestID)

	app.Get("/health", c.Health)
	if c.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(c.metrics))
	}

	api := app.Group("/api/v1")
	api.Get("/new", c.New)
	api.Get("/total", c.Total)
	api.Get("/summary", c.Summary)
	api.Get("/locations", c.Locations)
	if c.cache != nil {
		api.Get("/cache", c.Cache)
	}
	return app
}

func (c *Controller) requestID(ctx *fiber.Ctx) error {
	id := ctx.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Locals(requestIDHeader, id)
	ctx.Set(requestIDHeader, id)

	start := time.Now()
	err := ctx.Next()
	c.log.WithFields(map[string]interface{}{
		"request_id": id,
		"method":     ctx.Method(),
		"path":       ctx.Path(),
		"status":     ctx.Response().StatusCode(),
		"duration":   time.Since(start).String(),
	}).Debug("Request served")
	return err
}

func (c *Controller) handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, service.ErrTransport):
		code = fiber.StatusBadGateway
	}

	id, _ := ctx.Locals(requestIDHeader).(string)
	if code >= fiber.StatusInternalServerError {
		c.log.WithError(err).WithField("request_id", id).Error("Request failed")
	}
	return ctx.Status(code).JSON(ErrorResponse{Error: err.Error(), RequestID: id})
}

type query struct {
	location    string
	dataType    string
	dateRange   extractor.RangeSpec
	includeDate bool
}

func parseQuery(ctx *fiber.Ctx, defaultRange extractor.RangeSpec) (query, error) {
	q := query{
		location:  ctx.Query("location", source.NationalCode),
		dataType:  ctx.Query("data_type", string(source.Cases)),
		dateRange: defaultRange,
	}
	if raw := ctx.Query("range"); raw != "" {
		rng, err := extractor.ParseRange(raw)
		if err != nil {
			return query{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		q.dateRange = rng
	}
	if raw := ctx.Query("include_date"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return query{}, fiber.NewError(fiber.StatusBadRequest, "include_date must be a boolean")
		}
		q.includeDate = v
	}
	return q, nil
}

// New serves GET /api/v1/new.
func (c *Controller) New(ctx *fiber.Ctx) error {
	q, err := parseQuery(ctx, service.DefaultNewRange)
	if err != nil {
		return err
	}
	env, err := c.dispatcher.New(ctx.UserContext(), q.location, q.dataType, q.dateRange, q.includeDate)
	if err != nil {
		return err
	}
	return ctx.JSON(env)
}

// Total serves GET /api/v1/total.
func (c *Controller) Total(ctx *fiber.Ctx) error {
	q, err := parseQuery(ctx, service.DefaultTotalRange)
	if err != nil {
		return err
	}
	env, err := c.dispatcher.Total(ctx.UserContext(), q.location, q.dataType, q.dateRange)
	if err != nil {
		return err
	}
	return ctx.JSON(env)
}

// Summary serves GET /api/v1/summary.
func (c *Controller) Summary(ctx *fiber.Ctx) error {
	rows, err := c.dispatcher.Summary(ctx.UserContext(), ctx.Query("data_type", string(source.Cases)))
	if err != nil {
		return err
	}
	return ctx.JSON(rows)
}

func (c *Controller) Locations(ctx *fiber.Ctx) error {
	reg := c.dispatcher.Registry()
	resp := LocationsResponse{Aliases: make(map[string]string)}
	for _, d := range reg.Descriptors() {
		resp.Locations = append(resp.Locations, LocationInfo{Code: d.Code, Name: d.Name, Kind: d.Kind.String()})
	}
	for _, a := range reg.Aliases() {
		resp.Aliases[a[0]] = a[1]
	}
	return ctx.JSON(resp)
}

func (c *Controller) Cache(ctx *fiber.Ctx) error {
	return ctx.JSON(CacheResponse{Stats: c.cache.Stats(), Entries: c.cache.Entries()})
}

func (c *Controller) Health(ctx *fiber.Ctx) error {
	resp := StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metrics:   map[string]interface{}{"uptime": time.Since(c.started).Round(time.Second).String()},
		Health:    map[string]bool{"dispatcher": c.dispatcher != nil},
	}
	if c.cache != nil {
		stats := c.cache.Stats()
		resp.Metrics["cache_entries"] = stats.Entries
		resp.Metrics["cache_failures"] = stats.Failures
		resp.Health["cache"] = true
	}
	return ctx.JSON(resp)
}
