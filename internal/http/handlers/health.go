package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Readiness interface {
	CanCall() bool
}

type HealthHandler struct {
	store Readiness
}

func NewHealthHandler(store Readiness) *HealthHandler { return &HealthHandler{store: store} }

// HealthCheck reports 503 while the bulk transaction store is not usable.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	connected := h.store != nil && h.store.CanCall()
	status, code := "OK", http.StatusOK
	if !connected {
		status, code = "DOWN", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "bulkTransactionRepoConnected": connected})
}
