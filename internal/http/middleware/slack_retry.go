// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SlackRetry recognises Slack's redelivery headers. Slack resends an event it
// did not see acknowledged within three seconds and marks the attempt with
// X-Slack-Retry-Num and X-Slack-Retry-Reason. The middleware validates the
// headers, counts retries by reason and flags the request so the rate limiter
// lets it through; the handler then drops it via the delivery claim.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderSlackRetryNum    = "X-Slack-Retry-Num"
	HeaderSlackRetryReason = "X-Slack-Retry-Reason"
)

const (
	ctxKeyRetryNum   = "slack.retry_num"
	ctxKeyRateBypass = "rate.bypass"
)

// SlackRetryNum returns the retry attempt recorded by SlackRetry.
func SlackRetryNum(c *gin.Context) (int, bool) {
	v, ok := c.Get(ctxKeyRetryNum)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// IsRateBypass reports whether the rate limiter should skip this request.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// SlackRetry validates and records the retry headers. A malformed retry
// number is rejected with 400; an absent one is a no-op.
func SlackRetry() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderSlackRetryNum))
		if raw == "" {
			c.Next()
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_retry_header",
				"message":    "invalid " + HeaderSlackRetryNum,
			})
			return
		}
		slackRetries.WithLabelValues(retryReason(c.GetHeader(HeaderSlackRetryReason))).Inc()
		c.Set(ctxKeyRetryNum, n)
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	}
}

// knownRetryReasons bounds the metric label to what Slack documents.
var knownRetryReasons = map[string]struct{}{
	"http_timeout":       {},
	"http_error":         {},
	"too_many_redirects": {},
	"connection_failed":  {},
	"ssl_error":          {},
	"unknown_error":      {},
}

func retryReason(h string) string {
	r := strings.ToLower(strings.TrimSpace(h))
	if _, ok := knownRetryReasons[r]; ok {
		return r
	}
	return "other"
}
