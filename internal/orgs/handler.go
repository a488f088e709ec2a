package orgs

import (
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

// Handler manages organization endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: mw}
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrgsRead))
		r.Get("/", h.list)
		r.Get("/{orgID}", h.get)
		r.Get("/{orgID}/members", h.members)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrgsCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrgsUpdate))
		r.Put("/{orgID}", h.update)
		r.Put("/{orgID}/members/{userID}", h.addMember)
		r.Delete("/{orgID}/members/{userID}", h.removeMember)
	})
}

type orgView struct {
	ID        int64     `json:"id"`
	PublicID  string    `json:"public_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrgView(org Organization) orgView {
	return orgView{
		ID:        org.ID,
		PublicID:  org.PublicID,
		Name:      org.Name,
		Slug:      org.Slug,
		IsActive:  org.IsActive,
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list organizations", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]orgView, len(orgs))
	for i, org := range orgs {
		views[i] = toOrgView(org)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	org, err := h.service.Get(r.Context(), orgID)
	if err != nil {
		h.respondError(w, "get organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrgView(org))
}

type createOrgRequest struct {
	Name string `json:"name" validate:"required,min=2,max=128"`
	Slug string `json:"slug" validate:"required,min=2,max=64"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	org, err := h.service.Create(r.Context(), req.Name, req.Slug)
	if err != nil {
		h.respondError(w, "create organization", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrgView(org))
}

type updateOrgRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=128"`
	IsActive bool   `json:"is_active"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	var req updateOrgRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	org, err := h.service.Update(r.Context(), orgID, req.Name, req.IsActive)
	if err != nil {
		h.respondError(w, "update organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrgView(org))
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	ids, err := h.service.Members(r.Context(), orgID)
	if err != nil {
		h.respondError(w, "list members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"member_ids": ids})
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.AddMember(r.Context(), orgID, userID); err != nil {
		h.respondError(w, "add member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), orgID, userID); err != nil {
		h.respondError(w, "remove member", err)
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
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSlug):
		httpx.Problem(w, http.StatusConflict, "Duplicate Slug", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
