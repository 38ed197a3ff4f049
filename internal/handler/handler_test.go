package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-summary-bot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r, "")
	return r
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestHealth(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetLatestSummary(t *testing.T) {
	summaries := &stubSummaries{
		summary: &domain.Summary{Symbol: "OWB", Trigger: "morning", Content: "all good"},
	}
	h := New(testTracer, nil, summaries, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/summaries/owb", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if summaries.requested != "OWB" {
		t.Fatalf("expected symbol normalized to OWB, got %q", summaries.requested)
	}
	if !strings.Contains(w.Body.String(), "all good") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetLatestSummaryNotFound(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{err: errors.New("no summary for XYZ")}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/summaries/XYZ", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestTriggerRunAsync(t *testing.T) {
	runner := &stubRunner{}
	h := New(testTracer, runner, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/run", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	eventually(t, time.Second, func() bool { return runner.calls() == 1 })
	if runner.lastTrigger() != "manual" {
		t.Fatalf("expected manual trigger, got %q", runner.lastTrigger())
	}
}

func TestTriggerRunUnavailable(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/run", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestUpsertCoinValidation(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/coins", strings.NewReader(`{"name":"no symbol"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestUpsertCoin(t *testing.T) {
	coins := &stubCoins{}
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, coins, &stubMemory{})
	r := newTestRouter(h)

	body := `{"symbol":"pepe","name":"Pepe","cmc_id":"24478","feed_queries":["#pepe"]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/coins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(coins.upserted) != 1 || coins.upserted[0].Symbol != "pepe" {
		t.Fatalf("expected upserted coin, got %+v", coins.upserted)
	}
	if coins.upserted[0].CMCID != "24478" {
		t.Fatalf("expected cmc_id carried through, got %q", coins.upserted[0].CMCID)
	}
}

func TestGetTemplateUnknownRole(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/templates/banana", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestGetTemplateMissing(t *testing.T) {
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, &stubMemory{templateErr: domain.ErrTemplateMissing})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/templates/system", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestUpsertMemory(t *testing.T) {
	mem := &stubMemory{}
	h := New(testTracer, nil, &stubSummaries{}, &stubArchive{}, &stubCoins{}, mem)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/memory/analysis_style", strings.NewReader(`{"value":"be brief"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if mem.stored["analysis_style"] != "be brief" {
		t.Fatalf("expected stored memory entry, got %+v", mem.stored)
	}
}

func TestAPIKeyAuthGuardsAPIButNotHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(testTracer, nil, &stubSummaries{summary: &domain.Summary{Symbol: "OWB"}}, &stubArchive{}, &stubCoins{}, &stubMemory{})
	h.RegisterRoutes(r, "secret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health must bypass auth, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/summaries/OWB", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/summaries/OWB", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", w.Code)
	}
}

// --- stubs ---

type stubRunner struct {
	mu       sync.Mutex
	triggers []string
}

func (s *stubRunner) Run(ctx context.Context, trigger string) (domain.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trigger)
	return domain.RunResult{Trigger: trigger}, nil
}

func (s *stubRunner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

func (s *stubRunner) lastTrigger() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.triggers) == 0 {
		return ""
	}
	return s.triggers[len(s.triggers)-1]
}

type stubSummaries struct {
	summary   *domain.Summary
	err       error
	requested string
}

func (s *stubSummaries) Latest(ctx context.Context, symbol string) (*domain.Summary, error) {
	s.requested = symbol
	if s.err != nil {
		return nil, s.err
	}
	if s.summary == nil {
		return nil, errors.New("no summary")
	}
	return s.summary, nil
}

type stubArchive struct {
	summaries []domain.Summary
	err       error
}

func (s *stubArchive) Recent(ctx context.Context, symbol string, limit int) ([]domain.Summary, error) {
	return s.summaries, s.err
}

type stubCoins struct {
	coins    []domain.Coin
	upserted []domain.Coin
	err      error
}

func (s *stubCoins) ListAll(ctx context.Context) ([]domain.Coin, error) {
	return s.coins, s.err
}

func (s *stubCoins) Upsert(ctx context.Context, coin domain.Coin) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, coin)
	return nil
}

func (s *stubCoins) SetActive(ctx context.Context, symbol string, active bool) error {
	return s.err
}

func (s *stubCoins) Remove(ctx context.Context, symbol string) error {
	return s.err
}

type stubMemory struct {
	stored      map[string]string
	templateErr error
}

func (s *stubMemory) GetTemplate(ctx context.Context, role domain.TemplateRole) (*domain.Template, error) {
	if s.templateErr != nil {
		return nil, s.templateErr
	}
	return &domain.Template{Role: role, Text: "body"}, nil
}

func (s *stubMemory) SetTemplate(ctx context.Context, role domain.TemplateRole, text string) error {
	return nil
}

func (s *stubMemory) ListMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	return nil, nil
}

func (s *stubMemory) UpsertMemory(ctx context.Context, key, value string) error {
	if s.stored == nil {
		s.stored = make(map[string]string)
	}
	s.stored[key] = value
	return nil
}

func (s *stubMemory) RemoveMemory(ctx context.Context, key string) error {
	return nil
}
