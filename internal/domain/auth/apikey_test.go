package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, ErrUnknownKey
	}
	return info, nil
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	pepper := []byte("pepper")
	hash := HashKey(pepper, "secret-key")

	repo := &mockRepo{byHash: map[string]*APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "demo", UserID: "user-1"},
	}}
	a := NewAuthenticator(repo, pepper)

	info, err := a.Authenticate(ctx, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.UserID)

	_, err = a.Authenticate(ctx, "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewAuthenticator(repo, []byte("other")).Authenticate(ctx, "secret-key")
	require.ErrorIs(t, err, ErrUnauthorized, "hash depends on pepper")
}

func TestAuthenticator_RepoFailure(t *testing.T) {
	a := NewAuthenticator(&mockRepo{err: errors.New("db down")}, nil)
	_, err := a.Authenticate(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestUserIDContext(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	ctx := WithUserID(context.Background(), "u1")
	assert.Equal(t, "u1", UserID(ctx))
}
