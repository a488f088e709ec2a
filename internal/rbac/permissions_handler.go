package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ten-platform/ten/internal/platform/httpx"
	"github.com/ten-platform/ten/internal/shared"
)

// PermissionsHandler manages permission registry endpoints.
type PermissionsHandler struct {
	logger   *slog.Logger
	registry *Registry
	validate *validator.Validate
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, registry *Registry, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{
		logger:   logger,
		registry: registry,
		validate: validator.New(),
		rbac:     rbac,
	}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsRead))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		// Registering a permission changes what every role can carry.
		r.Use(h.rbac.RequireSensitive(OpModifyPermissions))
		r.Post("/", h.registerPermission)
	})
}

type permissionView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]permissionView, len(perms))
	for i, p := range perms {
		views[i] = permissionView{ID: p.ID, Name: p.Name, Resource: p.Resource, Action: p.Action, Description: p.Description}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

type registerPermissionRequest struct {
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Description string `json:"description"`
}

func (h *PermissionsHandler) registerPermission(w http.ResponseWriter, r *http.Request) {
	var req registerPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.registry.Register(r.Context(), req.Resource, req.Action, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPermissionFormat):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Permission", err.Error())
		case errors.Is(err, ErrDuplicatePermission):
			httpx.Problem(w, http.StatusConflict, "Duplicate Permission", err.Error())
		default:
			h.logger.Error("register permission", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionView{ID: perm.ID, Name: perm.Name, Resource: perm.Resource, Action: perm.Action, Description: perm.Description})
}
