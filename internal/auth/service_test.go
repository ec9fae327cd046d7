package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manulynx/gestores/internal/shared"
)

type stubRepo struct {
	byUsername map[string]*User
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, ok := s.byUsername[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	for _, u := range s.byUsername {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	repo := &stubRepo{byUsername: map[string]*User{
		"maria":  {ID: 1, Username: "maria", FullName: "María López", PasswordHash: hash, IsActive: true},
		"former": {ID: 2, Username: "former", PasswordHash: hash, IsActive: false},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "maria", "s3cret")
	require.NoError(t, err)
	assert.EqualValues(t, 1, user.ID)

	_, err = svc.Authenticate(ctx, "maria", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "s3cret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Deactivated accounts are indistinguishable from bad credentials.
	_, err = svc.Authenticate(ctx, "former", "s3cret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
