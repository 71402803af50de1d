package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/bulkflow/internal/data/aggregates"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/http/response"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

type BulkTransactionHandler struct {
	log       *logger.Logger
	producer  bus.Producer
	aggregate aggregates.BaseDeps
	now       func() time.Time
}

func NewBulkTransactionHandler(log *logger.Logger, producer bus.Producer, aggregate aggregates.BaseDeps) *BulkTransactionHandler {
	if aggregate.Log == nil {
		aggregate.Log = log
	}
	return &BulkTransactionHandler{
		log:       log.With("handler", "BulkTransactionHandler"),
		producer:  producer,
		aggregate: aggregate,
		now:       time.Now,
	}
}

type acceptedResponse struct {
	BulkTransactionID     string `json:"bulkTransactionId"`
	BulkHomeTransactionID string `json:"bulkHomeTransactionID,omitempty"`
	CurrentState          string `json:"currentState"`
}

// POST /bulkTransactions
func (h *BulkTransactionHandler) Create(c *gin.Context) {
	var req bulk.BulkTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeSchemaValidation), err)
		return
	}
	if strings.TrimSpace(req.BulkTransactionID) == "" {
		req.BulkTransactionID = uuid.NewString()
	}
	if err := bulk.ValidateRequest(&req); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if err := h.emit(c.Request.Context(), &events.SDKOutboundBulkRequestReceivedPayload{Request: req}); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.log.Info("bulk transaction accepted", "bulk_transaction_id", req.BulkTransactionID, "transfers", len(req.IndividualTransfers))
	response.RespondAccepted(c, acceptedResponse{
		BulkTransactionID:     req.BulkTransactionID,
		BulkHomeTransactionID: req.BulkHomeTransactionID,
		CurrentState:          bulk.ExternalStateReceived,
	})
}

// GET /bulkTransactions/:id
func (h *BulkTransactionHandler) Get(c *gin.Context) {
	agg, err := aggregates.CreateFromRepo(c.Request.Context(), c.Param("id"), h.aggregate)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	resp, err := agg.BuildResponse(c.Request.Context())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, resp)
}

type acceptanceItem struct {
	TransferID  string `json:"transferId"`
	AcceptParty *bool  `json:"acceptParty,omitempty"`
	AcceptQuote *bool  `json:"acceptQuote,omitempty"`
}

type acceptanceRequest struct {
	BulkHomeTransactionID string           `json:"bulkHomeTransactionID,omitempty"`
	IndividualTransfers   []acceptanceItem `json:"individualTransfers"`
}

// PUT /bulkTransactions/:id carries either party or quote decisions; a body
// mixing the two is rejected.
func (h *BulkTransactionHandler) Continue(c *gin.Context) {
	const op = "http.ContinueBulkTransaction"
	bulkID := c.Param("id")
	var req acceptanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeSchemaValidation), err)
		return
	}

	var parties []bulk.PartyAcceptance
	var quotes []bulk.QuoteAcceptance
	for _, it := range req.IndividualTransfers {
		switch {
		case it.AcceptParty != nil && it.AcceptQuote == nil:
			parties = append(parties, bulk.PartyAcceptance{TransferID: it.TransferID, AcceptParty: *it.AcceptParty})
		case it.AcceptQuote != nil && it.AcceptParty == nil:
			quotes = append(quotes, bulk.QuoteAcceptance{TransferID: it.TransferID, AcceptQuote: *it.AcceptQuote})
		default:
			response.RespondDomainError(c, domainagg.NewError(domainagg.CodeSchemaValidation, op,
				fmt.Sprintf("transfer %q needs exactly one of acceptParty or acceptQuote", it.TransferID), nil))
			return
		}
	}

	var p events.Payload
	switch {
	case len(parties) > 0 && len(quotes) > 0:
		response.RespondDomainError(c, domainagg.NewError(domainagg.CodeSchemaValidation, op, "party and quote decisions cannot be mixed", nil))
		return
	case len(parties) > 0:
		p = &events.SDKOutboundBulkAcceptPartyInfoReceivedPayload{BulkTransactionID: bulkID, Decisions: parties}
	default:
		p = &events.SDKOutboundBulkAcceptQuoteReceivedPayload{BulkTransactionID: bulkID, Decisions: quotes}
	}
	if err := bulk.Validate(p); err != nil {
		response.RespondDomainError(c, domainagg.NewError(domainagg.CodeSchemaValidation, op, err.Error(), err))
		return
	}
	if err := h.emit(c.Request.Context(), p); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"bulkTransactionId": bulkID})
}

func (h *BulkTransactionHandler) emit(ctx context.Context, p events.Payload) error {
	const op = "http.emit"
	msg, err := events.Encode(p, h.now(), events.TraceHeaders(ctx)...)
	if err != nil {
		return err
	}
	if err := h.producer.Send(ctx, msg); err != nil {
		h.log.Error("emit failed", "name", msg.Name, "key", msg.Key, "error", err)
		return domainagg.NewError(domainagg.CodeRetryable, op, fmt.Sprintf("send %s", msg.Name), err)
	}
	return nil
}
