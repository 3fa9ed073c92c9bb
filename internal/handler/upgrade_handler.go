package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/auth"
	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
	"github.com/terravale/api/internal/service"
	"github.com/terravale/api/pkg/economy"
)

// UpgradeHandler handles the build-queue endpoints: start, complete, cancel.
type UpgradeHandler struct {
	upgradeSvc *service.UpgradeService
}

// NewUpgradeHandler creates an UpgradeHandler.
func NewUpgradeHandler(upgradeSvc *service.UpgradeService) *UpgradeHandler {
	return &UpgradeHandler{upgradeSvc: upgradeSvc}
}

// upgradeStatus maps scheduler errors to HTTP status codes.
func upgradeStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrVillageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnknownKind), errors.Is(err, repository.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInsufficientResources):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrRequirementNotMet), errors.Is(err, service.ErrMaxLevelReached):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotPending), errors.Is(err, service.ErrNotYetDue),
		errors.Is(err, service.ErrStaleCancelTarget):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StartUpgrade handles POST /api/v1/villages/{id}/upgrades/start
func (h *UpgradeHandler) StartUpgrade(w http.ResponseWriter, r *http.Request) {
	villageID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		UpgradeType string `json:"upgradeType"`
		Level       int    `json:"level"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpgradeType == "" {
		writeError(w, http.StatusBadRequest, "upgradeType is required")
		return
	}

	result, err := h.upgradeSvc.Start(r.Context(), userID, villageID, req.UpgradeType)
	if err != nil {
		writeError(w, upgradeStatus(err), err.Error())
		return
	}

	// The requested level is advisory; the server re-derives the target.
	if req.Level != 0 && req.Level != result.TargetLevel {
		log.Debug().Str("villageId", villageID).Str("kind", req.UpgradeType).
			Int("requested", req.Level).Int("target", result.TargetLevel).
			Msg("Client requested level differs from derived target")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"level":      result.TargetLevel,
		"finishTime": result.FinishTime.UTC().Format(time.RFC3339),
		"cost":       result.Cost.Wood,
		"costs":      result.Cost,
	})
}

// CompleteUpgrade handles POST /api/v1/villages/{id}/upgrades/complete
func (h *UpgradeHandler) CompleteUpgrade(w http.ResponseWriter, r *http.Request) {
	villageID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		UpgradeType string `json:"upgradeType"`
		Level       int    `json:"level"`
		Points      int    `json:"points"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpgradeType == "" {
		writeError(w, http.StatusBadRequest, "upgradeType is required")
		return
	}

	result, err := h.upgradeSvc.Complete(r.Context(), userID, villageID, req.UpgradeType)
	if err != nil {
		writeError(w, upgradeStatus(err), err.Error())
		return
	}

	// Points are derived server-side; the body field is accepted for wire
	// compatibility but never trusted.
	if req.Points != 0 && req.Points != economy.PointsForLevel(req.UpgradeType) {
		log.Warn().Str("villageId", villageID).Str("kind", req.UpgradeType).
			Int("claimed", req.Points).Int("awarded", economy.PointsForLevel(req.UpgradeType)).
			Msg("Client-supplied points ignored")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"level":     result.Level,
		"village":   result.Village,
		"resources": result.Resources,
	})
}

// CancelUpgrade handles POST /api/v1/villages/{id}/upgrades/cancel
func (h *UpgradeHandler) CancelUpgrade(w http.ResponseWriter, r *http.Request) {
	villageID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		UpgradeType string        `json:"upgradeType"`
		Level       int           `json:"level"`
		Refund      model.Amounts `json:"refund"`
		FinishTime  time.Time     `json:"finishTime"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpgradeType == "" {
		writeError(w, http.StatusBadRequest, "upgradeType is required")
		return
	}
	if req.FinishTime.IsZero() {
		writeError(w, http.StatusBadRequest, "finishTime is required")
		return
	}

	result, err := h.upgradeSvc.Cancel(r.Context(), userID, villageID, req.UpgradeType, req.FinishTime)
	if err != nil {
		writeError(w, upgradeStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"resources": result.Resources,
		"refund":    result.Refund,
	})
}
