package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ten-platform/ten/internal/platform/httpx"
	"github.com/ten-platform/ten/internal/rbac"
	"github.com/ten-platform/ten/internal/shared"
)

// Inviter enqueues the invitation mail after account creation.
type Inviter interface {
	EnqueueInvite(ctx context.Context, email, name string) error
}

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbacSvc  *rbac.Service
	engine   *rbac.Engine
	validate *validator.Validate
	rbac     rbac.Middleware
	inviter  Inviter
}

// NewHandler builds Handler instance. inviter may be nil; invitation mail
// is then skipped.
func NewHandler(logger *slog.Logger, service *Service, rbacSvc *rbac.Service, engine *rbac.Engine, mw rbac.Middleware, inviter Inviter) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		rbacSvc:  rbacSvc,
		engine:   engine,
		validate: validator.New(),
		rbac:     mw,
		inviter:  inviter,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersRead))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersCreate))
		r.Post("/", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersUpdate))
		r.Post("/{userID}/activate", h.setActive(true))
		r.Post("/{userID}/deactivate", h.setActive(false))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersManage))
		r.Put("/{userID}/roles/{roleID}", h.assignRole)
		r.Delete("/{userID}/roles/{roleID}", h.removeRole)
		r.Post("/{userID}/grants", h.grantPermission)
		r.Delete("/{userID}/grants", h.revokePermission)
	})
}

type userView struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserView(u User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	users, paging, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = toUserView(u)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views, "pagination": paging})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        toUserView(profile.User),
		"roles":       profile.Roles,
		"direct":      profile.Direct,
		"permissions": profile.Permissions,
	})
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=128"`
	Password string `json:"password" validate:"required,min=10"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			httpx.Problem(w, http.StatusConflict, "Duplicate Email", err.Error())
			return
		}
		h.logger.Error("create user", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// The account exists either way; a failed enqueue is logged, not surfaced.
	if h.inviter != nil {
		if err := h.inviter.EnqueueInvite(r.Context(), user.Email, user.Name); err != nil {
			h.logger.Error("enqueue invite", slog.Any("error", err), slog.Int64("user_id", user.ID))
		}
	}
	httpx.JSON(w, http.StatusCreated, toUserView(user))
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.pathID(w, r, "userID")
		if !ok {
			return
		}
		if err := h.service.SetActive(r.Context(), userID, active); err != nil {
			h.respondError(w, "set active", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.rbacSvc.GetRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, "resolve role", err)
		return
	}
	// Granting the top tier is itself a sensitive operation; the static
	// users:manage permission is not enough.
	if role.IsTopTier {
		allowed, err := h.engine.CheckSensitive(r.Context(), actorID, rbac.OpAssignSuperAdmin)
		if err != nil {
			h.respondError(w, "check sensitive", err)
			return
		}
		if !allowed {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "assigning the top tier requires the top tier")
			return
		}
	}
	if err := h.rbacSvc.AssignRole(r.Context(), actorID, userID, roleID); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.rbacSvc.RemoveRole(r.Context(), actorID, userID, roleID); err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.rbacSvc.GrantPermission(r.Context(), actorID, userID, req.Permission); err != nil {
		h.respondError(w, "grant permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.CurrentUserID(r.Context())
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.rbacSvc.RevokePermission(r.Context(), actorID, userID, req.Permission); err != nil {
		h.respondError(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "path parameter "+name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, rbac.ErrUnknownPrincipal),
		errors.Is(err, rbac.ErrUnknownRole),
		errors.Is(err, rbac.ErrUnknownPermission):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, rbac.ErrInvalidPermissionFormat):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Permission", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
