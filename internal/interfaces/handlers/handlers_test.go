package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gnest/internal/domain/user"
	"gnest/internal/infra/gnest"
	"gnest/internal/infra/gnest/gnesttest"
	"gnest/internal/infra/pgsql"
	"gnest/internal/interfaces/filters"
	"gnest/internal/interfaces/guards"
	"gnest/internal/pkg/token"
)

type memRepo struct {
	mu    sync.Mutex
	users []*user.User
}

func (r *memRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = uuid.NewString()
	r.users = append(r.users, u)
	return nil
}

func (r *memRepo) find(match func(*user.User) bool) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.Email == email })
}

func (r *memRepo) FindByID(_ context.Context, id string) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.ID == id })
}

func (r *memRepo) List(_ context.Context, page, pageSize int) (*pgsql.PageResult[user.User], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &pgsql.PageResult[user.User]{Page: page, PageSize: pageSize, Total: int64(len(r.users))}
	for _, u := range r.users {
		res.List = append(res.List, *u)
	}
	res.PageCount = pgsql.PageCount(res.Total, pageSize)
	return res, nil
}

func newUsersApp(t *testing.T) (*gnest.App, *memRepo, *token.Service) {
	t.Helper()
	tokens, err := token.NewService(token.Config{Secret: "test"})
	require.NoError(t, err)
	repo := &memRepo{}

	app := gnest.New()
	app.Provide(tokens, func() user.Repository { return repo }, user.NewUserService)
	app.UseGlobalGuards(guards.NewJwtAuthGuard(tokens), guards.RolesGuard{})
	app.UseGlobalPipes(gnest.NewValidationPipe())
	app.UseGlobalFilters(filters.RecordNotFound(), filters.HttpException())
	app.Controller("/users", NewUserController)
	return app, repo, tokens
}

const annJSON = `{"email":"ann@example.com","firstName":"Ann","lastName":"Lee","password":"correct-horse"}`

func TestUserController_register_login_me(t *testing.T) {
	t.Parallel()

	app, _, _ := newUsersApp(t)

	rec := gnesttest.Do(t, app, http.MethodPost, "/users", annJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := gnesttest.JSON[map[string]any](t, rec)
	assert.Equal(t, "ann@example.com", created["email"])
	assert.NotContains(t, created, "password")

	rec = gnesttest.Do(t, app, http.MethodPost, "/users", annJSON)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "this email has already been registered", gnesttest.JSON[filters.Body](t, rec).Message)

	rec = gnesttest.Do(t, app, http.MethodPost, "/users/login", `{"email":"ann@example.com","password":"wrong-pass"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = gnesttest.Do(t, app, http.MethodPost, "/users/login", `{"email":"ann@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := gnesttest.JSON[user.TokenResponse](t, rec)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users/me", "", "Authorization", "Bearer "+tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created["id"], gnesttest.JSON[map[string]any](t, rec)["id"])

	rec = gnesttest.Do(t, app, http.MethodGet, "/users/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserController_validation(t *testing.T) {
	t.Parallel()

	app, _, _ := newUsersApp(t)
	rec := gnesttest.Do(t, app, http.MethodPost, "/users", `{"email":"ann","firstName":"","lastName":"Lee","password":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg := gnesttest.JSON[filters.Body](t, rec).Message.(string)
	assert.Contains(t, msg, "Email failed on 'email' validation")
	assert.Contains(t, msg, "FirstName failed on 'required' validation")
	assert.Contains(t, msg, "Password failed on 'min' validation (param=8)")
}

func TestUserController_admin_routes(t *testing.T) {
	t.Parallel()

	app, repo, tokens := newUsersApp(t)
	require.Equal(t, http.StatusCreated, gnesttest.Do(t, app, http.MethodPost, "/users", annJSON).Code)
	ann := repo.users[0]

	admin, err := tokens.Sign("admin-1", "root@example.com", []string{"admin"})
	require.NoError(t, err)
	plain, err := tokens.Sign(ann.ID, ann.Email, ann.Roles)
	require.NoError(t, err)
	auth := func(tok string) []string { return []string{"Authorization", "Bearer " + tok} }

	rec := gnesttest.Do(t, app, http.MethodGet, "/users?pageSize=5", "", auth(admin)...)
	require.Equal(t, http.StatusOK, rec.Code)
	page := gnesttest.JSON[pgsql.PageResult[user.User]](t, rec)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 5, page.PageSize)
	assert.EqualValues(t, 1, page.Total)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users?page=abc", "", auth(admin)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users", "", auth(plain)...)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users/"+ann.ID, "", auth(admin)...)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users/"+uuid.NewString(), "", auth(admin)...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Record not found", gnesttest.JSON[filters.Body](t, rec).Message)

	rec = gnesttest.Do(t, app, http.MethodGet, "/users/not-a-uuid", "", auth(admin)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (s *fakeStore) Upload(_ context.Context, name string, r io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = b
	s.types[name] = contentType
	return nil
}

func (s *fakeStore) PresignedURL(_ context.Context, name string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://cdn.example.com/%s?expires=%d", name, int(expiry.Seconds())), nil
}

func (s *fakeStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

func TestFileController(t *testing.T) {
	t.Parallel()

	store := &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
	app := gnest.New()
	app.Provide(func() ObjectStore { return store })
	app.Controller("/files", NewFileController)
	require.NoError(t, app.Init(context.Background()))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Avatar.PNG")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	obj := gnesttest.JSON[UploadedObject](t, rec)
	assert.True(t, strings.HasSuffix(obj.Name, ".png"))
	assert.EqualValues(t, len("png-bytes"), obj.Size)
	assert.Equal(t, []byte("png-bytes"), store.objects[obj.Name])

	rec = gnesttest.Do(t, app, http.MethodGet, "/files/"+obj.Name, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.example.com/"+obj.Name+"?expires=300", rec.Header().Get("Location"))

	rec = gnesttest.Do(t, app, http.MethodDelete, "/files/"+obj.Name, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, store.objects, obj.Name)

	rec = gnesttest.Do(t, app, http.MethodPost, "/files", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthController(t *testing.T) {
	t.Parallel()

	healthy := &HealthController{checks: []HealthCheck{{Name: "redis", Check: func(context.Context) error { return nil }}}}
	sick := &HealthController{checks: []HealthCheck{
		{Name: "redis", Check: func(context.Context) error { return nil }},
		{Name: "pgsql", Check: func(context.Context) error { return fmt.Errorf("dial tcp: refused") }},
	}}

	for name, tc := range map[string]struct {
		ctrl   *HealthController
		code   int
		status HealthStatus
	}{
		"healthy": {healthy, http.StatusOK, HealthStatus{Status: "ok", Checks: map[string]string{"redis": "up"}}},
		"sick": {sick, http.StatusServiceUnavailable, HealthStatus{Status: "error", Checks: map[string]string{
			"redis": "up", "pgsql": "dial tcp: refused",
		}}},
	} {
		t.Run(name, func(t *testing.T) {
			app := gnest.New()
			app.Controller("/health", func() *HealthController { return tc.ctrl })

			rec := gnesttest.Do(t, app, http.MethodGet, "/health", "")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, gnesttest.JSON[HealthStatus](t, rec))
		})
	}
}
