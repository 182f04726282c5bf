package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplebug/helpdesk/internal/config"
	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/geoip"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

type fakeUserRepo struct {
	byContact map[string]*domain.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byContact: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = uuid.NewString()
	copied := *user
	f.byContact[user.Contact] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	for _, user := range f.byContact {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserRepo) GetByContact(ctx context.Context, contact string) (*domain.User, error) {
	user, ok := f.byContact[contact]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func newAuthService(repo *fakeUserRepo) *AuthService {
	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 15
	cfg.Auth.BcryptCost = 4
	return NewAuthService(cfg, AuthDependencies{UserRepo: repo, Resolver: geoip.Static{Location: "local"}})
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newAuthService(repo)

	user, token, exp, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, token)
	assert.False(t, exp.IsZero())
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.Equal(t, "local", user.IPLocation)

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	loggedIn, token2, _, err := svc.Login(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, token2)
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(newFakeUserRepo())
	_, _, _, err := svc.Register(context.Background(), "", "a@b.c", "pw", "")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestRegisterDuplicateContact(t *testing.T) {
	svc := newAuthService(newFakeUserRepo())
	_, _, _, err := svc.Register(context.Background(), "alice", "a@b.c", "pw", "")
	require.NoError(t, err)

	_, _, _, err = svc.Register(context.Background(), "alice2", "a@b.c", "pw2", "")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestRegisterDuplicateContactRace(t *testing.T) {
	// the pre-insert lookup passes but a concurrent registration wins;
	// the constraint violation must read as a client error, not a 500
	repo := newFakeUserRepo()
	repo.createErr = &pgconn.PgError{Code: "23505", ConstraintName: "users_contact_key"}
	svc := newAuthService(repo)

	_, _, _, err := svc.Register(context.Background(), "alice", "a@b.c", "pw", "")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newAuthService(newFakeUserRepo())
	_, _, _, err := svc.Register(context.Background(), "alice", "a@b.c", "pw", "")
	require.NoError(t, err)

	_, _, _, err = svc.Login(context.Background(), "a@b.c", "nope")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestLoginUnknownContact(t *testing.T) {
	svc := newAuthService(newFakeUserRepo())
	_, _, _, err := svc.Login(context.Background(), "nobody@b.c", "pw")
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
}
