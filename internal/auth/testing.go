package auth

import "context"

// SetUserIDForTest injects a user ID into the context, letting handler
// tests bypass the JWT middleware.
func SetUserIDForTest(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
