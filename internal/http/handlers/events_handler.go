// Admin read API over the State Store.
//
//   - GET /channels/{id}/events  (paginated, newest first, weak ETag)
//   - GET /events/{id}
//   - GET /stats
//
// The API is read-only; the pipeline is the single writer.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/http/middleware"
	"github.com/tbourn/slacker/internal/repo"
	"github.com/tbourn/slacker/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListEventsResponse wraps a page of stored events.
type ListEventsResponse struct {
	Events     []domain.EventRecord `json:"events"`
	Pagination Pagination           `json:"pagination"`
}

// StatsResponse summarizes the store.
type StatsResponse struct {
	Total    int64              `json:"total"`
	ByStatus []repo.StatusCount `json:"by_status"`
	ByIntent map[string]int64   `json:"by_intent"`
}

// ListChannelEvents returns a page of a channel's events. The weak ETag
// covers row count and newest update, so If-None-Match yields 304 until
// the pipeline writes to the channel again.
func (h *Handlers) ListChannelEvents(c *gin.Context) {
	ctx := c.Request.Context()
	channelID := strings.TrimSpace(c.Param("id"))
	if channelID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel id required")
		return
	}
	page := utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	total, maxTS, err := repo.EventsStats(ctx, h.DB, channelID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"events:%s:%d:%d:%d:%d"`, channelID, total, ts, page.Number, page.Size)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, err := repo.ListEventsPage(ctx, h.DB, channelID, page.Offset(), page.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	pages := utils.TotalPages(total, page.Size)
	ok(c, http.StatusOK, ListEventsResponse{
		Events: items,
		Pagination: Pagination{
			Page:       page.Number,
			PageSize:   page.Size,
			Total:      total,
			TotalPages: pages,
			HasNext:    page.Number < pages,
		},
	})
}

// GetEvent returns one stored event by its "<channel>:<ts>" id.
func (h *Handlers) GetEvent(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event id required")
		return
	}
	rec, err := repo.GetEvent(c.Request.Context(), h.DB, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "event not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, rec)
	}
}

// Stats returns event counts by status and by intent.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	byStatus, err := repo.CountByStatus(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	byIntent, err := repo.CountByIntent(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	var total int64
	for _, s := range byStatus {
		total += s.Count
	}
	ok(c, http.StatusOK, StatsResponse{Total: total, ByStatus: byStatus, ByIntent: byIntent})
}

// Health pings the database. It answers 503 when the store is unreachable.
func (h *Handlers) Health(c *gin.Context) {
	if h.DB == nil {
		ok(c, http.StatusOK, gin.H{"status": "ok"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("health check failed")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "database unreachable")
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
