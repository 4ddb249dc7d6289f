package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDCtxKey = "request_id"
)

// NewRequestID builds a short identifier from the current time and a random suffix.
func NewRequestID() string {
	return fmt.Sprintf("%x-%s", time.Now().UnixMilli(), randomHex(6))
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDCtxKey)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
