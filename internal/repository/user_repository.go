package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maplebug/helpdesk/internal/domain"
)

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByContact(ctx context.Context, contact string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (username, contact, password_hash, ip, ip_location)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		user.Username,
		user.Contact,
		user.PasswordHash,
		user.IP,
		user.IPLocation,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, username, contact, password_hash, ip, ip_location, created_at
        FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByContact(ctx context.Context, contact string) (*domain.User, error) {
	const query = `
        SELECT id, username, contact, password_hash, ip, ip_location, created_at
        FROM users WHERE contact=$1`
	return r.fetchSingle(ctx, query, contact)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Contact,
		&user.PasswordHash,
		&user.IP,
		&user.IPLocation,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
