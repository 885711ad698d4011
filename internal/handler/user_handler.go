package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/auth"
	"github.com/prn-tf/hoaxify/internal/service"
)

// UserHandler serves the user account API.
type UserHandler struct {
	users  *service.UserService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

// RegisterRoutes registers the user routes on r.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleRegister)
	r.Post("/users/token/{token}", h.handleActivate)
	r.Post("/users/activation/{token}", h.handleActivate)
	r.Get("/users", h.handleList)
	r.Get("/users/{id}", h.handleGet)
	r.With(auth.Middleware(h.logger)).Put("/users/{id}", h.handleUpdate)
	r.Post("/auth", h.handleAuthenticate)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateRequest struct {
	Username string `json:"username"`
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decode reads a JSON body into v. A missing or unreadable body leaves v zero,
// which the validation rules then report field by field.
func (h *UserHandler) decode(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("unreadable request body")
	}
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	h.decode(r, &req)

	err := h.users.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Language: localizerFrom(r.Context()).Language(),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, keyInternalError)
		return
	}

	writeMessage(w, r, http.StatusOK, keyUserCreated)
}

func (h *UserHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Activate(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeServiceError(w, r, h.logger, err, keyActivationFailure)
		return
	}

	writeMessage(w, r, http.StatusOK, keyActivationSuccess)
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := atoiOrZero(query.Get("page"))
	size := atoiOrZero(query.Get("size"))

	result, err := h.users.ListUsers(r.Context(), page, size)
	if err != nil {
		writeServiceError(w, r, h.logger, err, keyInternalError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, keyUserNotFound, nil)
		return
	}

	view, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, keyUserNotFound)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	// An unparsable id can never belong to the caller.
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusForbidden, keyUnauthorizedUpdate, nil)
		return
	}

	var req updateRequest
	h.decode(r, &req)

	view, err := h.users.UpdateUser(r.Context(), service.UpdateInput{
		TargetID:    id,
		Username:    req.Username,
		Credentials: auth.CredentialsFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, keyUnauthorizedUpdate)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *UserHandler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	h.decode(r, &req)

	summary, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, keyInactiveAuthFailure)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// atoiOrZero parses s, mapping anything non-numeric to 0.
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
