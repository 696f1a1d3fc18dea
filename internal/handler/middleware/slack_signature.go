package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reactor/slackbridge/pkg/response"
)

const (
	headerSlackSignature = "X-Slack-Signature"
	headerSlackTimestamp = "X-Slack-Request-Timestamp"

	maxSignatureSkew = 5 * time.Minute
	maxEventBody     = 1 << 20
)

// SlackSignature verifies Slack's v0 request signature over the raw body
// and restores the body for the next handler.
func SlackSignature(signingSecret string, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		ts := c.GetHeader(headerSlackTimestamp)
		sig := c.GetHeader(headerSlackSignature)
		if ts == "" || sig == "" {
			response.Unauthorized(c, "missing signature")
			c.Abort()
			return
		}

		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			response.Unauthorized(c, "invalid signature")
			c.Abort()
			return
		}
		skew := now().Sub(time.Unix(sec, 0))
		if skew > maxSignatureSkew || skew < -maxSignatureSkew {
			response.Unauthorized(c, "stale request")
			c.Abort()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			response.BadRequest(c, "unreadable body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !hmac.Equal([]byte(sig), []byte(SignSlackRequest(signingSecret, ts, body))) {
			response.Unauthorized(c, "invalid signature")
			c.Abort()
			return
		}
		c.Next()
	}
}

// SignSlackRequest computes the X-Slack-Signature value for body.
func SignSlackRequest(signingSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
