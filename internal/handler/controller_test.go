package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covid-parser/internal/service"
	"covid-parser/pkg/extractor"
	"covid-parser/pkg/logger"
	"covid-parser/pkg/source"
	"covid-parser/pkg/storage"
)

type call struct {
	op          string
	location    string
	dataType    string
	dateRange   extractor.RangeSpec
	includeDate bool
}

type mockDispatcher struct {
	calls []call
	env   service.Envelope
	err   error
}

func (m *mockDispatcher) New(ctx context.Context, location, dataType string, rng extractor.RangeSpec, includeDate bool) (service.Envelope, error) {
	m.calls = append(m.calls, call{"new", location, dataType, rng, includeDate})
	return m.env, m.err
}

func (m *mockDispatcher) Total(ctx context.Context, location, dataType string, rng extractor.RangeSpec) (service.Envelope, error) {
	m.calls = append(m.calls, call{"total", location, dataType, rng, false})
	return m.env, m.err
}

func (m *mockDispatcher) Summary(ctx context.Context, dataType string) ([]service.LocationResult, error) {
	m.calls = append(m.calls, call{op: "summary", dataType: dataType})
	if m.err != nil {
		return nil, m.err
	}
	return []service.LocationResult{{Code: "aus", Name: "Australia", Result: m.env}}, nil
}

func (m *mockDispatcher) Registry() *source.Registry {
	return source.NewRegistry()
}

type mockCache struct{}

func (mockCache) Stats() storage.CacheStats {
	return storage.CacheStats{Policy: "time", Interval: 300, Entries: 1, Fetches: 1}
}

func (mockCache) Entries() []storage.CacheEntry {
	return []storage.CacheEntry{{URL: "http://upstream.test", Timestamp: 1700000000}}
}

func okEnvelope(t *testing.T, content string) service.Envelope {
	t.Helper()
	var env service.Envelope
	raw := fmt.Sprintf(`{"status":"ok","content":%s,"classified":0}`, content)
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func newTestController(d service.Dispatcher) *Controller {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "covidparser_requests_total 0\n")
	})
	return NewController(d, mockCache{}, metrics, logger.Nop())
}

func get(t *testing.T, c *Controller, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.App().Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestController_NewDefaults(t *testing.T) {
	d := &mockDispatcher{env: okEnvelope(t, `["10","4"]`)}
	resp, body := get(t, newTestController(d), "/api/v1/new")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","content":["10","4"],"classified":0}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	require.Len(t, d.calls, 1)
	assert.Equal(t, call{"new", "aus", "cases", extractor.LastDays(2), false}, d.calls[0])
}

func TestController_NewQuery(t *testing.T) {
	d := &mockDispatcher{env: okEnvelope(t, `[["03/03","4"]]`)}
	resp, _ := get(t, newTestController(d), "/api/v1/new?location=Victoria&data_type=deaths&range=days:7&include_date=true")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.calls, 1)
	assert.Equal(t, call{"new", "Victoria", "deaths", extractor.LastDays(7), true}, d.calls[0])
}

func TestController_TotalDefaultsToAll(t *testing.T) {
	d := &mockDispatcher{env: okEnvelope(t, `15`)}
	resp, body := get(t, newTestController(d), "/api/v1/total?location=usa")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","content":15,"classified":0}`, string(body))
	assert.Equal(t, extractor.Everything(), d.calls[0].dateRange)
}

func TestController_BadQuery(t *testing.T) {
	d := &mockDispatcher{}
	c := newTestController(d)

	resp, _ := get(t, c, "/api/v1/new?range=days:seven")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, c, "/api/v1/new?include_date=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, d.calls)
}

func TestController_TransportError(t *testing.T) {
	d := &mockDispatcher{err: fmt.Errorf("%w: connection refused", service.ErrTransport)}
	resp, body := get(t, newTestController(d), "/api/v1/new")

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Contains(t, er.Error, "connection refused")
	assert.Equal(t, resp.Header.Get("X-Request-ID"), er.RequestID)
}

func TestController_RequestIDIsEchoed(t *testing.T) {
	d := &mockDispatcher{env: okEnvelope(t, `[]`)}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/new", nil)
	req.Header.Set("X-Request-ID", "abc-123")

	resp, err := newTestController(d).App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestController_Summary(t *testing.T) {
	d := &mockDispatcher{env: okEnvelope(t, `[["03/03","10"]]`)}
	resp, body := get(t, newTestController(d), "/api/v1/summary?data_type=deaths")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"code":"aus","name":"Australia","result":{"status":"ok","content":[["03/03","10"]],"classified":0}}]`, string(body))
	assert.Equal(t, "deaths", d.calls[0].dataType)
}

func TestController_Locations(t *testing.T) {
	_, body := get(t, newTestController(&mockDispatcher{}), "/api/v1/locations")

	var resp LocationsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Locations, 9)
	assert.Equal(t, LocationInfo{Code: "aus", Name: "Australia", Kind: "national"}, resp.Locations[0])
	assert.Equal(t, "usa", resp.Aliases["america"])
}

func TestController_CacheAndHealth(t *testing.T) {
	c := newTestController(&mockDispatcher{})

	_, body := get(t, c, "/api/v1/cache")
	assert.JSONEq(t, `{
		"stats": {"policy":"time","interval":300,"entries":1,"hits":0,"fetches":1,"failures":0},
		"entries": [{"url":"http://upstream.test","timestamp":1700000000,"uses":0}]
	}`, string(body))

	resp, body := get(t, c, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "ok", status.Status)
	assert.True(t, status.Health["cache"])
}

func TestController_Metrics(t *testing.T) {
	resp, body := get(t, newTestController(&mockDispatcher{}), "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "covidparser_requests_total")
}
