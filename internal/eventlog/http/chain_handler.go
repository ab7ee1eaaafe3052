// Package http provides HTTP handlers for failed-message chain operations.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/shakamirtskhulava/eventlog/internal/eventlog/http/dto"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/usecase"
	"github.com/shakamirtskhulava/eventlog/internal/httputil"

	appValidation "github.com/shakamirtskhulava/eventlog/internal/validation"
)

// ChainHandler handles failed-message chain HTTP requests.
type ChainHandler struct {
	chainService usecase.ChainService
	logger       *slog.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(chainService usecase.ChainService, logger *slog.Logger) *ChainHandler {
	return &ChainHandler{
		chainService: chainService,
		logger:       logger,
	}
}

// ListChains handles GET /v1/chains. Returns chains with all their messages,
// including skipped ones, for operator inspection.
func (h *ChainHandler) ListChains(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseLimit(r)
	if err != nil {
		httputil.HandleBadRequest(w, err, h.logger)
		return
	}

	chains, err := h.chainService.ListChains(r.Context(), limit)
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	httputil.MakeJSONResponse(w, http.StatusOK, dto.ToChainListResponse(chains))
}

// UpdateChain handles PATCH /v1/chains/{entityID}. Flips the chain's
// republish gate.
func (h *ChainHandler) UpdateChain(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entityID")
	if err := validation.Validate(entityID, validation.Required, appValidation.NotBlank); err != nil {
		httputil.HandleBadRequest(w, err, h.logger)
		return
	}

	var req dto.UpdateChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.HandleBadRequest(w, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	if err := h.chainService.SetChainRepublish(r.Context(), entityID, *req.ShouldRepublish); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	httputil.MakeJSONResponse(w, http.StatusOK, dto.UpdateChainResponse{
		EntityID:        entityID,
		ShouldRepublish: *req.ShouldRepublish,
	})
}

// UpdateMessage handles PATCH /v1/messages/{messageID}. Flips the message's
// skip gate.
func (h *ChainHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	rawID := r.PathValue("messageID")
	if err := validation.Validate(rawID, validation.Required, appValidation.UUIDString); err != nil {
		httputil.HandleBadRequest(w, err, h.logger)
		return
	}
	messageID := uuid.MustParse(rawID)

	var req dto.UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.HandleBadRequest(w, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	if err := h.chainService.SetMessageSkip(r.Context(), messageID, *req.ShouldSkip); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	httputil.MakeJSONResponse(w, http.StatusOK, dto.UpdateMessageResponse{
		ID:         messageID,
		ShouldSkip: *req.ShouldSkip,
	})
}
