package acceptance

import (
	"context"

	"payplan-workers/internal/common/auth"
	"payplan-workers/internal/common/errors"
)

type actorKey struct{}

// WithActor binds an already resolved actor to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor bound by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ContextIdentity resolves the actor bound to the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return Actor{}, errors.NewPermissionDeniedError("", "no authenticated actor")
	}
	return actor, nil
}

// TokenValidator introspects bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// TokenIdentity resolves the actor from the access token attached with
// auth.WithAccessToken. An actor bound with WithActor takes precedence.
type TokenIdentity struct {
	validator TokenValidator
	clientID  string
}

func NewTokenIdentity(validator TokenValidator, clientID string) *TokenIdentity {
	return &TokenIdentity{validator: validator, clientID: clientID}
}

func (i *TokenIdentity) CurrentActor(ctx context.Context) (Actor, error) {
	if actor, ok := ActorFromContext(ctx); ok && actor.ID != "" {
		return actor, nil
	}
	token, ok := auth.AccessToken(ctx)
	if !ok {
		return Actor{}, errors.NewPermissionDeniedError("", "no access token")
	}
	info, err := i.validator.ValidateToken(ctx, token)
	if err != nil {
		return Actor{}, err
	}
	return Actor{
		ID:       info.Sub,
		Username: info.Name(),
		Roles:    info.Roles(i.clientID),
	}, nil
}
