package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/radar/internal/pipeline"
)

type fakeIngester struct {
	stats  []pipeline.SourceStats
	err    error
	called int
}

func (f *fakeIngester) IngestAll(context.Context) ([]pipeline.SourceStats, error) {
	f.called++
	return f.stats, f.err
}

func newTestContext(t *testing.T, method, target string, body string, header map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var resp envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response envelope: %v", err)
	}
	return resp
}

func TestHandleFeedRejectsBadSort(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodGet, "/api/v1/feed?sort=bogus", "", nil)

	if err := s.handleFeed(c); err != nil {
		t.Fatalf("handleFeed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Status != "fail" {
		t.Fatalf("envelope status = %q, want fail", resp.Status)
	}
}

func TestHandleFeedRejectsOversizedPage(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodGet, "/api/v1/feed?page_size=5000", "", nil)

	if err := s.handleFeed(c); err != nil {
		t.Fatalf("handleFeed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodGet, "/api/v1/search", "", nil)

	if err := s.handleSearch(c); err != nil {
		t.Fatalf("handleSearch: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleItemRejectsBadID(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodGet, "/api/v1/items/abc", "", nil)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := s.handleItem(c); err != nil {
		t.Fatalf("handleItem: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCollectionsRequireUserToken(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodPost, "/api/v1/collections", `{"name":"Reading"}`, nil)

	if err := s.handleCreateCollection(c); err != nil {
		t.Fatalf("handleCreateCollection: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateCollectionRequiresName(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodPost, "/api/v1/collections", `{"name":"  "}`,
		map[string]string{userTokenHeader: "token-1"})

	if err := s.handleCreateCollection(c); err != nil {
		t.Fatalf("handleCreateCollection: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCronIngestRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{}
	s := NewServer(nil, ingester, zerolog.Nop(), Options{CronSecret: "topsecret"})
	c, rec := newTestContext(t, http.MethodPost, "/api/cron/ingest", "",
		map[string]string{cronSecretHeader: "wrong"})

	if err := s.handleCronIngest(c); err != nil {
		t.Fatalf("handleCronIngest: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ingester.called != 0 {
		t.Fatal("ingestion must not run with a bad secret")
	}
}

func TestCronIngestRejectsWhenUnconfigured(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{}
	s := NewServer(nil, ingester, zerolog.Nop(), Options{})
	c, rec := newTestContext(t, http.MethodPost, "/api/cron/ingest", "",
		map[string]string{cronSecretHeader: ""})

	if err := s.handleCronIngest(c); err != nil {
		t.Fatalf("handleCronIngest: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ingester.called != 0 {
		t.Fatal("an empty configured secret must never authorize")
	}
}

func TestCronIngestAcceptsHeaderSecret(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{stats: []pipeline.SourceStats{
		{SourceName: "a", Processed: 3, Inserted: 2, Deduped: 1},
		{SourceName: "b", Processed: 1, Errors: []string{"fetch: boom"}},
	}}
	s := NewServer(nil, ingester, zerolog.Nop(), Options{CronSecret: "topsecret"})
	c, rec := newTestContext(t, http.MethodPost, "/api/cron/ingest", "",
		map[string]string{cronSecretHeader: "topsecret"})

	if err := s.handleCronIngest(c); err != nil {
		t.Fatalf("handleCronIngest: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ingester.called != 1 {
		t.Fatalf("ingester called %d times, want 1", ingester.called)
	}

	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data payload: %v", resp.Data)
	}
	if data["processed"] != float64(4) || data["inserted"] != float64(2) || data["errors"] != float64(1) {
		t.Fatalf("unexpected totals: %v", data)
	}
}

func TestCronIngestAcceptsQuerySecret(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{}
	s := NewServer(nil, ingester, zerolog.Nop(), Options{CronSecret: "topsecret"})
	c, rec := newTestContext(t, http.MethodPost, "/api/cron/ingest?secret=topsecret", "", nil)

	if err := s.handleCronIngest(c); err != nil {
		t.Fatalf("handleCronIngest: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCronIngestReportsPipelineFailure(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{err: errors.New("sources unavailable")}
	s := NewServer(nil, ingester, zerolog.Nop(), Options{CronSecret: "topsecret"})
	c, rec := newTestContext(t, http.MethodPost, "/api/cron/ingest", "",
		map[string]string{cronSecretHeader: "topsecret"})

	if err := s.handleCronIngest(c); err != nil {
		t.Fatalf("handleCronIngest: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Status != "error" {
		t.Fatalf("envelope status = %q, want error", resp.Status)
	}
}
