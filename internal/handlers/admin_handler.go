package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

const accountsPath = "/api/admin/accounts/"

// AdminHandler serves operator routes. Callers wrap it with
// Authenticator.RequireAdmin.
type AdminHandler struct {
	sweeper  StaleSweeper
	identity interfaces.IdentityService
	logger   arbor.ILogger
}

func NewAdminHandler(sweeper StaleSweeper, identity interfaces.IdentityService, logger arbor.ILogger) *AdminHandler {
	return &AdminHandler{
		sweeper:  sweeper,
		identity: identity,
		logger:   logger,
	}
}

// SweepHandler handles POST /api/admin/sweep
func (h *AdminHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := h.sweeper.RunStaleSweep(r.Context())
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ProfilesHandler handles POST /api/admin/profiles. Returns 201 when the
// profile was created and 200 when it already existed.
func (h *AdminHandler) ProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ProvisionProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, created, err := h.identity.EnsureProfile(r.Context(), req.UserID, req.Email, req.Name)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, models.ProvisionProfileResponse{
		Profile: profile,
		APIKey:  profile.APIKey,
		Created: created,
	})
}

// AccountCreditsHandler handles POST /api/admin/accounts/{id}/credits
func (h *AdminHandler) AccountCreditsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, accountsPath), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "credits" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	accountID := parts[0]

	var req models.GrantCreditsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.identity.GrantCredits(r.Context(), accountID, req.Amount, req.Note)
	if err != nil {
		if status, message := StatusForError(err); status == http.StatusPaymentRequired {
			// A negative adjustment larger than the balance
			WriteError(w, http.StatusBadRequest, message)
			return
		}
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}
