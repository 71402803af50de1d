package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bulkflow/internal/http/response"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
	"github.com/yungbote/bulkflow/internal/reqresp"
)

// CallbackHandler receives the switch's asynchronous replies and hands them
// to whoever waits on the matching reply channel. Bodies pass through as
// received; success and /error variants share a channel.
type CallbackHandler struct {
	log       *logger.Logger
	publisher bus.Publisher
}

func NewCallbackHandler(log *logger.Logger, publisher bus.Publisher) *CallbackHandler {
	return &CallbackHandler{log: log.With("handler", "CallbackHandler"), publisher: publisher}
}

// PUT /parties/:type/:id[/:subId][/error]
func (h *CallbackHandler) Parties(c *gin.Context) {
	h.publish(c, reqresp.PartiesChannel(c.Param("type"), c.Param("id"), c.Param("subId")))
}

// PUT /bulkQuotes/:id[/error]
func (h *CallbackHandler) BulkQuotes(c *gin.Context) {
	h.publish(c, reqresp.BulkQuotesChannel(c.Param("id")))
}

// PUT /bulkTransfers/:id[/error]
func (h *CallbackHandler) BulkTransfers(c *gin.Context) {
	h.publish(c, reqresp.BulkTransfersChannel(c.Param("id")))
}

func (h *CallbackHandler) publish(c *gin.Context, channel string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(body) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", errors.New("empty body"))
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), channel, body); err != nil {
		h.log.Error("publish callback failed", "channel", channel, "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	h.log.Debug("callback published", "channel", channel, "bytes", len(body))
	c.Status(http.StatusOK)
}
