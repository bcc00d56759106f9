package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slacker/internal/config"
	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/http/middleware"
)

// --- fake pipeline queue ---
type fakeQueue struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
}

func (q *fakeQueue) Submit(m *domain.InboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, *m)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.EventRecord{}, &domain.ProcessedEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      50,
		CORS:           config.CORSConfig{AllowedOrigins: nil},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		EventDedupeTTL: time.Hour,
	}
}

func newServer(t *testing.T, cfg config.Config) (*gin.Engine, *fakeQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	q := &fakeQueue{}
	RegisterRoutes(r, newTestDB(t), q, cfg)
	return r, q
}

func serve(r http.Handler, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func envelope(deliveryID, ts string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"event_callback","event_id":%q,"event":{"type":"message","channel":"C1","user":"U1","text":"what is the SLA?","ts":%q}}`,
		deliveryID, ts))
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := serve(r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if w.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatal("missing X-Request-ID")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers not applied: %v", w.Header())
	}

	// generate some traffic, then scrape
	_ = serve(r, http.MethodGet, "/health", nil, nil)
	w = serve(r, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "slacker_http_requests_total") {
		t.Fatalf("GET /metrics = %d, body lacks request counter", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/slack/events", nil, nil)
	if w.Code != http.StatusMethodNotAllowed || !strings.Contains(w.Body.String(), `"method_not_allowed"`) {
		t.Fatalf("GET /slack/events = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_SlackEventsFlow(t *testing.T) {
	r, q := newServer(t, testConfig())

	w := serve(r, http.MethodPost, "/slack/events", []byte(`{"type":"url_verification","challenge":"abc"}`), nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"challenge":"abc"`) {
		t.Fatalf("challenge = %d %s", w.Code, w.Body.String())
	}

	body := envelope("Ev1", "1719824400.000100")
	w = serve(r, http.MethodPost, "/slack/events", body, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"accepted"`) {
		t.Fatalf("first delivery = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/slack/events", body, map[string]string{
		middleware.HeaderSlackRetryNum:    "1",
		middleware.HeaderSlackRetryReason: "http_timeout",
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"duplicate"`) {
		t.Fatalf("retry = %d %s", w.Code, w.Body.String())
	}
	if q.len() != 1 {
		t.Fatalf("submitted=%d, want 1", q.len())
	}
}

func TestRegisterRoutes_SignatureRequiredWhenSecretSet(t *testing.T) {
	cfg := testConfig()
	cfg.Slack.SigningSecret = "s3cret"
	r, q := newServer(t, cfg)

	w := serve(r, http.MethodPost, "/slack/events", envelope("Ev1", "1719824400.000100"), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned = %d", w.Code)
	}
	if q.len() != 0 {
		t.Fatal("unsigned event reached the pipeline")
	}
}

func TestRegisterRoutes_BodyTooLarge(t *testing.T) {
	r, _ := newServer(t, testConfig())
	big := bytes.Repeat([]byte("a"), maxBody+10)
	w := serve(r, http.MethodPost, "/slack/events", big, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized = %d", w.Code)
	}
}

func TestRegisterRoutes_RateLimitBypassedForSlackRetries(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newServer(t, cfg)

	body := envelope("Ev1", "1719824400.000100")
	if w := serve(r, http.MethodPost, "/slack/events", body, nil); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/slack/events", envelope("Ev2", "1719824401.000100"), nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", w.Code)
	}
	w := serve(r, http.MethodPost, "/slack/events", body, map[string]string{middleware.HeaderSlackRetryNum: "2"})
	if w.Code != http.StatusOK {
		t.Fatalf("retry = %d, want 200", w.Code)
	}
}

func TestRegisterRoutes_AdminAPI(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/channels/C1/events", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	var page struct {
		Events     []json.RawMessage `json:"events"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Events) != 0 || page.Pagination.Total != 0 {
		t.Fatalf("page=%+v", page)
	}

	if w := serve(r, http.MethodGet, "/api/v1/events/C1:1", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get missing = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/stats", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
}

func TestRegisterRoutes_AdminGzip(t *testing.T) {
	r, _ := newServer(t, testConfig())
	w := serve(r, http.MethodGet, "/api/v1/stats", nil, map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding=%q, want gzip", w.Header().Get("Content-Encoding"))
	}
}

func TestRegisterRoutes_CORSOnAdminOnly(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://admin.example.org"}}
	r, _ := newServer(t, cfg)

	// must differ from the httptest Host (example.com) to count as cross-origin
	origin := map[string]string{"Origin": "http://admin.example.org"}
	w := serve(r, http.MethodGet, "/api/v1/stats", nil, origin)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://admin.example.org" {
		t.Fatalf("admin ACAO=%q", got)
	}

	w = serve(r, http.MethodGet, "/health", nil, origin)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("health ACAO=%q, want none", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, http.MethodPost, "/echo", []byte("0123456789AB"), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}
