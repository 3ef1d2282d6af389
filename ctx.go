package account

import (
	"context"
)

var actorCtxKey = &contextKey{"actor"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithActor sets the Actor in the given context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the actor stored in ctx, or the anonymous
// actor when there is none.
func ActorFromContext(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	actor, _ := ctx.Value(actorCtxKey).(Actor)
	return actor
}

// WithSession stores the verified session payload and the actor it
// identifies.
func WithSession(ctx context.Context, session SessionPayload) context.Context {
	ctx = context.WithValue(ctx, sessionCtxKey, session)
	return WithActor(ctx, Actor{ID: session.ID, Roles: session.Roles})
}

// SessionFromContext finds the session payload in ctx.
func SessionFromContext(ctx context.Context) (SessionPayload, bool) {
	if ctx == nil {
		return SessionPayload{}, false
	}
	session, ok := ctx.Value(sessionCtxKey).(SessionPayload)
	return session, ok
}
