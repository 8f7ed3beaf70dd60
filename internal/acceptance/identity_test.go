package acceptance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/auth"
	"payplan-workers/internal/common/errors"
)

type stubValidator struct {
	info  *auth.TokenInfo
	err   error
	calls int
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (*auth.TokenInfo, error) {
	s.calls++
	return s.info, s.err
}

func TestTokenIdentity(t *testing.T) {
	validator := &stubValidator{info: &auth.TokenInfo{
		Active:            true,
		Sub:               "user-7",
		PreferredUsername: "bob",
		RealmAccess:       auth.RoleSet{Roles: []string{"approver"}},
		ResourceAccess:    map[string]auth.RoleSet{"payplan": {Roles: []string{"authorizer"}}},
	}}
	identity := NewTokenIdentity(validator, "payplan")

	actor, err := identity.CurrentActor(auth.WithAccessToken(context.Background(), "tok"))
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "user-7", Username: "bob", Roles: []string{"approver", "authorizer"}}, actor)

	_, err = identity.CurrentActor(context.Background())
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.CodeOf(err))

	bound := WithActor(context.Background(), SystemActor)
	actor, err = identity.CurrentActor(bound)
	require.NoError(t, err)
	assert.True(t, actor.System)
	assert.Equal(t, 1, validator.calls, "bound actors skip introspection")
}

func TestTokenIdentity_ProviderDown(t *testing.T) {
	validator := &stubValidator{err: errors.NewIdentityUnavailableError(context.DeadlineExceeded)}
	identity := NewTokenIdentity(validator, "payplan")

	_, err := identity.CurrentActor(auth.WithAccessToken(context.Background(), "tok"))
	assert.Equal(t, errors.ErrCodeIdentityUnavailable, errors.CodeOf(err))
}

func TestContextIdentity(t *testing.T) {
	_, err := ContextIdentity{}.CurrentActor(context.Background())
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.CodeOf(err))

	actor, err := ContextIdentity{}.CurrentActor(WithActor(context.Background(), Actor{ID: "u"}))
	require.NoError(t, err)
	assert.Equal(t, "u", actor.ID)
}
