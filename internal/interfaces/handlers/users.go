package handlers

import (
	"context"
	"errors"
	"net/http"

	"gnest/internal/domain/user"
	"gnest/internal/infra/gnest"
	"gnest/internal/infra/pgsql"
	"gnest/internal/interfaces/guards"
	"gnest/internal/interfaces/interceptors"
)

type UserController struct {
	users *user.UserService
}

func NewUserController(users *user.UserService) *UserController {
	return &UserController{users: users}
}

func (h *UserController) Mount(r *gnest.RouterGroup) {
	r.UseFilters(gnest.Catch(gnest.FilterFunc(userErrors), user.ErrEmailTaken, user.ErrInvalidCredentials))

	r.POST("", h.Register,
		guards.Public(),
		interceptors.Audited("user.create"),
		gnest.HttpCode(http.StatusCreated),
		gnest.Body(1, ""),
	)
	r.POST("/login", h.Login,
		guards.Public(),
		interceptors.Audited("user.login"),
		gnest.Body(1, ""),
	)
	r.GET("/me", h.Profile, gnest.User(1, "Subject"))
	r.GET("", h.List,
		guards.Roles("admin"),
		gnest.Query(1, "page", gnest.DefaultValuePipe{Value: "1"}, gnest.ParseIntPipe{}),
		gnest.Query(2, "pageSize", gnest.DefaultValuePipe{Value: "20"}, gnest.ParseIntPipe{}),
	)
	r.GET("/:id", h.Profile,
		guards.Roles("admin"),
		gnest.Param(1, "id", gnest.ParseUUIDPipe{}),
	)
}

func (h *UserController) Register(ctx context.Context, in *user.CreateUserDTO) (*user.User, error) {
	return h.users.Register(ctx, in)
}

func (h *UserController) Login(ctx context.Context, in *user.LoginDTO) (*user.TokenResponse, error) {
	return h.users.Authenticate(ctx, in)
}

func (h *UserController) Profile(ctx context.Context, id string) (*user.User, error) {
	return h.users.Profile(ctx, id)
}

func (h *UserController) List(ctx context.Context, page, pageSize int) (*pgsql.PageResult[user.User], error) {
	if pageSize > 100 {
		return nil, gnest.BadRequest("pageSize must not exceed 100")
	}
	return h.users.List(ctx, page, pageSize)
}

// userErrors turns domain errors into HTTP errors for the next filter or the
// default mapping.
func userErrors(err error, _ *gnest.ExecutionContext) (any, error) {
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return nil, gnest.Conflict(user.ErrEmailTaken.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		return nil, gnest.Unauthorized(user.ErrInvalidCredentials.Error())
	}
	return nil, err
}
