package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-api/internal/common"
)

// Handlers exposes the admin login endpoint.
type Handlers struct {
	Service *Service
	Log     zerolog.Logger
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login exchanges the admin password for a bearer token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if req.Password == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "password is required", nil)
		return
	}
	result, err := h.Service.Login(req.Password)
	if err != nil {
		h.Log.Warn().Str("remote_addr", r.RemoteAddr).Msg("admin login rejected")
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
			return
		}
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, result)
}
