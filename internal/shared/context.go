package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id from context, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// RequireActor extracts the acting user id, failing with ErrActorMissing when
// the request carried no identity.
func RequireActor(ctx context.Context) (int64, error) {
	id := ActorFromContext(ctx)
	if id == 0 {
		return 0, ErrActorMissing
	}
	return id, nil
}
