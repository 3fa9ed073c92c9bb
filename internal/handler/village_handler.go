package handler

import (
	"errors"
	"net/http"

	"github.com/terravale/api/internal/auth"
	"github.com/terravale/api/internal/repository"
	"github.com/terravale/api/internal/service"
)

// VillageHandler handles village read and provisioning endpoints.
type VillageHandler struct {
	villageSvc *service.VillageService
}

// NewVillageHandler creates a VillageHandler.
func NewVillageHandler(villageSvc *service.VillageService) *VillageHandler {
	return &VillageHandler{villageSvc: villageSvc}
}

func villageStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrVillageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListVillages handles GET /api/v1/villages
func (h *VillageHandler) ListVillages(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	villages, err := h.villageSvc.ListVillages(r.Context(), userID)
	if err != nil {
		writeError(w, villageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, villages)
}

// CreateVillage handles POST /api/v1/villages
func (h *VillageHandler) CreateVillage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	village, err := h.villageSvc.Provision(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, villageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, village)
}

// GetVillage handles GET /api/v1/villages/{id}
func (h *VillageHandler) GetVillage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	village, err := h.villageSvc.GetVillage(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, villageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, village)
}

// GetResources handles GET /api/v1/villages/{id}/resources
func (h *VillageHandler) GetResources(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	resources, err := h.villageSvc.GetResources(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, villageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resources)
}
