package service

import (
	"context"
)

// Authorizer decides whether a user may claim items and record decisions.
type Authorizer interface {
	CanModerate(ctx context.Context, userID int64) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, userID int64) (bool, error)

func (f AuthorizerFunc) CanModerate(ctx context.Context, userID int64) (bool, error) {
	return f(ctx, userID)
}

// TeamAuthorizer grants moderation rights to users with a team setting row.
type TeamAuthorizer struct {
	store *Store
}

func NewTeamAuthorizer(store *Store) *TeamAuthorizer {
	return &TeamAuthorizer{store: store}
}

func (a *TeamAuthorizer) CanModerate(ctx context.Context, userID int64) (bool, error) {
	setting, err := a.store.Team.Get(ctx, a.store.DB, userID)
	if err != nil {
		return false, err
	}
	return setting != nil, nil
}
