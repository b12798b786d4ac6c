package identity

import (
	"testing"

	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(nil, config.AuthConfig{
		Secret:       "test-secret",
		TokenTTL:     60,
		BcryptRounds: 4,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService()

	user := &model.User{
		Id:    7,
		Email: "verifier@example.com",
		Role:  model.RoleVerifier,
	}

	token, err := svc.IssueToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, string(model.RoleVerifier), claims.Role)
}

func TestParseTokenRejectsTampering(t *testing.T) {
	svc := newTestService()

	user := &model.User{Id: 7, Role: model.RoleVerifier}
	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ParseToken("not.a.token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(nil, config.AuthConfig{Secret: "different-secret", TokenTTL: 60})
		_, err := other.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("truncated token", func(t *testing.T) {
		_, err := svc.ParseToken(token[:len(token)-5])
		assert.Error(t, err)
	})
}
