package roles_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-platform/ten/internal/rbac"
	"github.com/ten-platform/ten/internal/roles"
	"github.com/ten-platform/ten/internal/shared"
	_ "github.com/ten-platform/ten/testing"
)

// mockStore implements rbac.Store in memory for handler tests.
type mockStore struct {
	perms      map[string]rbac.Permission
	nextPermID int64
	roles      map[int64]rbac.Role
	nextRoleID int64
	userRoles  map[int64]map[int64]bool
	principals map[int64]rbac.Principal
}

func newMockStore() *mockStore {
	return &mockStore{
		perms:      map[string]rbac.Permission{},
		nextPermID: 1,
		roles:      map[int64]rbac.Role{},
		nextRoleID: 1,
		userRoles:  map[int64]map[int64]bool{},
		principals: map[int64]rbac.Principal{},
	}
}

func (s *mockStore) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s *mockStore) GetPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	p, ok := s.perms[name]
	if !ok {
		return rbac.Permission{}, rbac.ErrUnknownPermission
	}
	return p, nil
}

func (s *mockStore) InsertPermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	if _, ok := s.perms[p.Name]; ok {
		return rbac.Permission{}, rbac.ErrDuplicatePermission
	}
	p.ID = s.nextPermID
	s.nextPermID++
	s.perms[p.Name] = p
	return p, nil
}

func (s *mockStore) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *mockStore) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrUnknownRole
	}
	return r, nil
}

func (s *mockStore) GetRoleByCode(ctx context.Context, code string) (rbac.Role, error) {
	for _, r := range s.roles {
		if r.Code == code {
			return r, nil
		}
	}
	return rbac.Role{}, rbac.ErrUnknownRole
}

func (s *mockStore) InsertRole(ctx context.Context, role rbac.Role, permissionIDs []int64) (rbac.Role, error) {
	for _, r := range s.roles {
		if r.Code == role.Code {
			return rbac.Role{}, rbac.ErrDuplicateRoleName
		}
	}
	role.ID = s.nextRoleID
	s.nextRoleID++
	for _, id := range permissionIDs {
		for _, p := range s.perms {
			if p.ID == id {
				role.Permissions = append(role.Permissions, p)
			}
		}
	}
	s.roles[role.ID] = role
	return role, nil
}

func (s *mockStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]int64, error) {
	r, ok := s.roles[roleID]
	if !ok {
		return nil, rbac.ErrUnknownRole
	}
	if r.Kind == rbac.RoleKindSystem {
		return nil, rbac.ErrSystemRoleImmutable
	}
	r.Permissions = nil
	for _, id := range permissionIDs {
		for _, p := range s.perms {
			if p.ID == id {
				r.Permissions = append(r.Permissions, p)
			}
		}
	}
	s.roles[roleID] = r
	return s.memberIDs(roleID), nil
}

func (s *mockStore) DeleteRoleCascade(ctx context.Context, roleID int64) ([]int64, error) {
	r, ok := s.roles[roleID]
	if !ok {
		return nil, rbac.ErrUnknownRole
	}
	if r.Kind == rbac.RoleKindSystem {
		return nil, rbac.ErrSystemRoleImmutable
	}
	members := s.memberIDs(roleID)
	delete(s.roles, roleID)
	for _, held := range s.userRoles {
		delete(held, roleID)
	}
	return members, nil
}

func (s *mockStore) memberIDs(roleID int64) []int64 {
	var ids []int64
	for userID, held := range s.userRoles {
		if held[roleID] {
			ids = append(ids, userID)
		}
	}
	return ids
}

func (s *mockStore) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = map[int64]bool{}
	}
	s.userRoles[userID][roleID] = true
	return nil
}

func (s *mockStore) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *mockStore) GrantPermissionToUser(ctx context.Context, userID, permissionID int64) error {
	return nil
}

func (s *mockStore) RevokePermissionFromUser(ctx context.Context, userID, permissionID int64) error {
	return nil
}

func (s *mockStore) LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	p, ok := s.principals[userID]
	if !ok {
		return rbac.Principal{}, rbac.ErrUnknownPrincipal
	}
	return p, nil
}

const (
	managerID  = int64(1)
	topTierID  = int64(2)
	readOnlyID = int64(3)
)

func newHandler(t *testing.T) (*roles.Handler, *mockStore, *rbac.Service) {
	t.Helper()
	store := newMockStore()
	registry := rbac.NewRegistry(store)
	ctx := context.Background()
	for _, pair := range [][2]string{
		{"content", "read"}, {"content", "update"}, {"roles", "read"}, {"roles", "manage"},
	} {
		_, err := registry.Register(ctx, pair[0], pair[1], "")
		require.NoError(t, err)
	}
	store.principals[managerID] = rbac.Principal{UserID: managerID, Direct: []string{"roles:read", "roles:manage"}}
	store.principals[topTierID] = rbac.Principal{UserID: topTierID, Roles: []rbac.Role{{Code: "SUPER", IsTopTier: true}}}
	store.principals[readOnlyID] = rbac.Principal{UserID: readOnlyID, Direct: []string{"roles:read"}}

	service := rbac.NewService(store, registry, nil, nil, nil)
	mw := rbac.Middleware{Engine: rbac.NewEngine(store, nil)}
	return roles.NewHandler(nil, service, mw), store, service
}

func doRequest(handler *roles.Handler, method, target, body string, userID int64) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/roles", handler.MountRoutes)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	sess := &shared.Session{ID: "test"}
	sess.SetUser(itoa(userID))
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestCreateAndListRoles(t *testing.T) {
	handler, _, _ := newHandler(t)

	res := doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor","permissions":["content:read","content:update"]}`, managerID)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created struct {
		ID          int64    `json:"id"`
		Kind        string   `json:"kind"`
		IsTopTier   bool     `json:"is_top_tier"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "regular", created.Kind)
	assert.False(t, created.IsTopTier)
	assert.Len(t, created.Permissions, 2)

	res = doRequest(handler, http.MethodGet, "/roles", "", readOnlyID)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Roles []json.RawMessage `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	assert.Len(t, listed.Roles, 1)
}

func TestCreateRoleRequiresManagePermission(t *testing.T) {
	handler, _, _ := newHandler(t)

	res := doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor"}`, readOnlyID)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestCreateRoleUnknownPermission(t *testing.T) {
	handler, _, _ := newHandler(t)

	res := doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor","permissions":["ghosts:read"]}`, managerID)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestCreateRoleDuplicate(t *testing.T) {
	handler, _, _ := newHandler(t)

	res := doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor"}`, managerID)
	require.Equal(t, http.StatusCreated, res.Code)
	res = doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor Two"}`, managerID)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestUpdateSystemRolePermissions(t *testing.T) {
	handler, store, _ := newHandler(t)
	store.roles[50] = rbac.Role{ID: 50, Code: "ADM", Kind: rbac.RoleKindSystem}

	res := doRequest(handler, http.MethodPut, "/roles/50/permissions", `{"permissions":["content:read"]}`, managerID)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestDeleteRoleIsTopTierOnly(t *testing.T) {
	handler, _, _ := newHandler(t)

	res := doRequest(handler, http.MethodPost, "/roles", `{"code":"EDT","name":"Editor"}`, managerID)
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	// roles:manage alone is not enough to delete.
	res = doRequest(handler, http.MethodDelete, "/roles/"+itoa(created.ID), "", managerID)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = doRequest(handler, http.MethodDelete, "/roles/"+itoa(created.ID), "", topTierID)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = doRequest(handler, http.MethodGet, "/roles/"+itoa(created.ID), "", readOnlyID)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestGetRoleBadID(t *testing.T) {
	handler, _, _ := newHandler(t)
	res := doRequest(handler, http.MethodGet, "/roles/abc", "", readOnlyID)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
