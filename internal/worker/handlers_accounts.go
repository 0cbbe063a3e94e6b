package worker

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// registerRequest is the body of POST /api/auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// loginRequest is the body of POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountResponse wraps the account returned by register and login.
type accountResponse struct {
	User *models.Account `json:"user"`
}

// handleRegister creates an account and its starting scoring state.
func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	acc, err := s.store.CreateAccount(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		respondError(w, r, err)
		return
	}
	if _, err := s.users.InitUser(r.Context(), acc.ID); err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().Str("user", acc.ID).Msg("Account registered")
	writeJSONStatus(w, http.StatusCreated, accountResponse{User: acc})
}

// handleLogin checks credentials and brings the user's week up to date.
func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	acc, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, r, err)
		return
	}

	if _, err := s.users.SettleIfDue(r.Context(), acc.ID); err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			respondError(w, r, err)
			return
		}
		if _, err := s.users.InitUser(r.Context(), acc.ID); err != nil {
			respondError(w, r, err)
			return
		}
	}
	writeJSON(w, accountResponse{User: acc})
}

// saveGuestRequest is the body of POST /api/guest/save-name. An empty
// GuestID asks the server to mint one.
type saveGuestRequest struct {
	GuestID string `json:"guest_id"`
	Name    string `json:"name"`
}

// handleSaveGuestName creates or renames a guest profile.
func (s *Service) handleSaveGuestName(w http.ResponseWriter, r *http.Request) {
	var req saveGuestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.GuestID == "" {
		req.GuestID = db.NewID()
	}
	if err := ValidateGuestID(req.GuestID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	guest, err := s.store.SaveGuest(r.Context(), req.GuestID, req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.guests.InitUser(r.Context(), guest.GuestID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, guest)
}

// handleGetGuest returns the profile and records the visit.
func (s *Service) handleGetGuest(w http.ResponseWriter, r *http.Request) {
	guest, err := s.store.TouchGuest(r.Context(), userFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, guest)
}

// themes lists the accepted preference themes.
var themes = map[string]bool{"light": true, "dark": true}

// handleGuestPreferences merges a partial preferences update.
func (s *Service) handleGuestPreferences(w http.ResponseWriter, r *http.Request) {
	var patch models.PreferencesPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	if patch.Theme != nil && !themes[*patch.Theme] {
		writeError(w, http.StatusBadRequest, "theme must be light or dark")
		return
	}

	guest, err := s.store.UpdatePreferences(r.Context(), userFromRequest(r), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, guest)
}

// handleDeleteGuest removes the profile and its scoring data.
func (s *Service) handleDeleteGuest(w http.ResponseWriter, r *http.Request) {
	id := userFromRequest(r)
	if err := s.store.DeleteGuest(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.guests.ResetUser(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
