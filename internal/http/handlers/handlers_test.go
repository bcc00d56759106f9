package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slacker/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.EventRecord{}, &domain.ProcessedEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeQueue struct {
	mu   sync.Mutex
	err  error
	msgs []domain.InboundMessage
}

func (q *fakeQueue) Submit(m *domain.InboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, *m)
	return nil
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/slack/events", h.SlackEvents)
	r.GET("/channels/:id/events", h.ListChannelEvents)
	r.GET("/events/:id", h.GetEvent)
	r.GET("/stats", h.Stats)
	r.GET("/health", h.Health)
	return r
}

func doJSON(r http.Handler, method, path string, body []byte, hdr http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func messageEnvelope(deliveryID, channel, ts, text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":     "event_callback",
		"event_id": deliveryID,
		"event": map[string]any{
			"type": "message", "channel": channel, "user": "U1", "text": text, "ts": ts,
		},
	})
	return b
}

func signed(secret string, body []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	h := http.Header{}
	h.Set("X-Slack-Request-Timestamp", ts)
	h.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return h
}
