package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"gnest/internal/infra/pgsql"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context, page, pageSize int) (*pgsql.PageResult[User], error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(pg *pgsql.PGSQL) *UserRepository {
	pg.Migrate = append(pg.Migrate, &User{})
	return &UserRepository{db: pg.DB}
}

func (r *UserRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(u).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

// FindByEmail returns gorm.ErrRecordNotFound when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context, page, pageSize int) (*pgsql.PageResult[User], error) {
	return pgsql.Paginate[User](ctx, r.db.Model(&User{}).Order("created_at DESC"), page, pageSize)
}
