package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/user/internal/service"
)

// UserHandler handles the account endpoints outside the login flow.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// UpdatePhoneNumberRequest is the body of PUT /api/v1/me/phone_number.
type UpdatePhoneNumberRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,param=phone_number"`
}

// UpdateInfoRequest is the body of PUT /api/v1/me/info.
type UpdateInfoRequest struct {
	UserDisplayName  string  `json:"user_display_name" validate:"required,param=user_display_name"`
	SelfIntroduction *string `json:"self_introduction" validate:"omitempty,param=self_introduction"`
}

// --- Handlers ---

// Availability handles GET /api/v1/users/{user_id}/availability
func (h *UserHandler) Availability(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CheckUserID(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, res)
}

// Info handles GET /api/v1/users/{user_id}/info
func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetUserInfo(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, info)
}

// UpdatePhoneNumber handles PUT /api/v1/me/phone_number
func (h *UserHandler) UpdatePhoneNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req UpdatePhoneNumberRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, r, err, h.logger)
		return
	}

	if err := h.service.UpdatePhoneNumber(r.Context(), userID, req.PhoneNumber); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePhoneNumber handles DELETE /api/v1/me/phone_number
func (h *UserHandler) DeletePhoneNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.ForceUnverifiedPhone(r.Context(), userID); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateInfo handles PUT /api/v1/me/info
func (h *UserHandler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateInfoRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, r, err, h.logger)
		return
	}

	in := service.UpdateProfileInput{DisplayName: req.UserDisplayName}
	if req.SelfIntroduction != nil {
		in.SelfIntroduction = *req.SelfIntroduction
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, user)
}

func (h *UserHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return "", false
	}
	return userID, true
}
