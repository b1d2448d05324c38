package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/logging"
	"ragchat/internal/metrics"
	"ragchat/internal/service"
)

type fakeService struct {
	asked   []string
	answer  string
	askErr  error
	report  *service.IngestReport
	ingErr  error
	cleared int
	panics  bool
}

func (f *fakeService) Ask(_ context.Context, q string) (*service.Answer, error) {
	if f.panics {
		panic("boom")
	}
	f.asked = append(f.asked, q)
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &service.Answer{Text: f.answer}, nil
}

func (f *fakeService) Ingest(_ context.Context, folder string) (*service.IngestReport, error) {
	if f.ingErr != nil {
		return nil, f.ingErr
	}
	return f.report, nil
}

func (f *fakeService) Clear(context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeService) State() service.State { return service.StateReady }

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetResponse(t *testing.T) {
	svc := &fakeService{answer: "The sky is blue."}
	e := New(svc, metrics.New(), logging.Discard())

	rec := do(t, e, http.MethodPost, "/get_response", `{"query":"What color is the sky?"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"The sky is blue."}`, rec.Body.String())
	assert.Equal(t, []string{"What color is the sky?"}, svc.asked)
}

func TestGetResponseBlankQuery(t *testing.T) {
	for name, body := range map[string]string{
		"missing": `{}`,
		"empty":   `{"query":""}`,
		"spaces":  `{"query":"   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			e := New(svc, nil, logging.Discard())

			rec := do(t, e, http.MethodPost, "/get_response", body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"response":"Please enter a valid query."}`, rec.Body.String())
			assert.Empty(t, svc.asked)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{domain.NewError(domain.KindServiceUnavailable, "generate", errors.New("connection refused")), http.StatusServiceUnavailable, "service_unavailable"},
		{domain.NewError(domain.KindTimeout, "generate", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{domain.NewError(domain.KindMalformedInput, "embed query", errors.New("bad request")), http.StatusBadRequest, "malformed_input"},
		{errors.New("unexpected"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			e := New(&fakeService{askErr: tc.err}, nil, logging.Discard())
			rec := do(t, e, http.MethodPost, "/get_response", `{"query":"sky"}`)
			assert.Equal(t, tc.code, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestIngest(t *testing.T) {
	svc := &fakeService{report: &service.IngestReport{
		Folder: "data", Documents: 2, Chunks: 5, Skipped: []string{"a.md"}, Summary: "Sky.",
	}}
	e := New(svc, nil, logging.Discard())

	rec := do(t, e, http.MethodPost, "/ingest", `{"folder":"data"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"folder":"data","documents":2,"chunks":5,"skipped":1,"summary":"Sky."}`, rec.Body.String())

	rec = do(t, e, http.MethodPost, "/ingest", `{"folder":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.ingErr = domain.NewError(domain.KindNoDocuments, "ingest", errors.New("nothing to load"))
	rec = do(t, e, http.MethodPost, "/ingest", `{"folder":"empty"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_documents", decode(t, rec)["kind"])

	rec = do(t, e, http.MethodPost, "/ingest", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAndHealth(t *testing.T) {
	svc := &fakeService{}
	e := New(svc, nil, logging.Discard())

	rec := do(t, e, http.MethodPost, "/clear", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"cleared"}`, rec.Body.String())
	assert.Equal(t, 1, svc.cleared)

	rec = do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","state":"ready"}`, rec.Body.String())
}

func TestIndexAndMetrics(t *testing.T) {
	m := metrics.New()
	m.Ask(metrics.OutcomeAnswered)
	e := New(&fakeService{}, m, logging.Discard())

	rec := do(t, e, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "/get_response")

	rec = do(t, e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ragchat_asks_total{outcome="answered"} 1`)
}

func TestPanicBecomes500(t *testing.T) {
	e := New(&fakeService{panics: true}, nil, logging.Discard())
	rec := do(t, e, http.MethodPost, "/get_response", `{"query":"sky"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decode(t, rec)["kind"])
}

func TestRunStopsOnCancel(t *testing.T) {
	e := New(&fakeService{}, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, e, "127.0.0.1:0", logging.Discard()) }()
	cancel()
	assert.NoError(t, <-done)
}
