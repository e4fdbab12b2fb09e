package httpx

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tokenbay/storefront/internal/apperr"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get("rid")
		log.Printf("[http] rid=%v %s %s status=%d dur=%s",
			rid, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Error writes err as JSON with the status its Kind maps to. Transient
// errors carry their retry hint in seconds.
func Error(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if retry := apperr.RetryAfterOf(err); retry > 0 {
		body["retry_after_seconds"] = int(retry.Seconds())
	}
	c.JSON(apperr.HTTPStatus(err), body)
}
