package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports the state of one dependency
type HealthChecker func() error

// HealthHandler GET /health
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler checks may be empty
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheckHandler reports 503 when any dependency check fails
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"service":      "lending-gateway",
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	})
}

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func errorJSON(c *gin.Context, status int, code, errMsg, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
}
