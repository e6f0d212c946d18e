package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.Users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.db.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

// handleCreateUser invites a new operator: the account starts locked with
// a one-time initialization token, returned in the response exactly once.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Email == "" {
		writeError(w, operr.MissingParameters("username", "email"))
		return
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{"Guest"}
	}
	for _, name := range roles {
		if _, err := s.db.Roles.GetByName(r.Context(), name); err != nil {
			if errors.Is(err, operr.ErrNotFound) {
				writeError(w, operr.InvalidParameters("roles"))
				return
			}
			writeError(w, err)
			return
		}
	}

	token, _, err := crypto.GenerateToken()
	if err != nil {
		writeError(w, err)
		return
	}
	encToken, err := s.authority.Encryptor().Encrypt(token)
	if err != nil {
		writeError(w, err)
		return
	}

	user := &models.User{
		ID:                  uuid.New().String(),
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Username:            req.Username,
		EmailAddress:        req.Email,
		InitializationToken: encToken,
		Locked:              true,
		Roles:               roles,
		CreatedAt:           time.Now(),
	}
	if err := s.db.Users.Create(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("username", user.Username).Msg("User invited")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":                user,
		"initializationToken": token,
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Users.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Users.SetLocked(r.Context(), mux.Vars(r)["id"], false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.db.Roles.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}
