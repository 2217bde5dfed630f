package server

import (
	"context"

	"github.com/GoCodeAlone/taskmaster/tracker"
)

// contextWithSubject tags the request with the authenticated user. The
// tracker reads it back when recording activity.
func contextWithSubject(ctx context.Context, subject string) context.Context {
	return tracker.WithUser(ctx, subject)
}

func subjectFrom(ctx context.Context) string {
	return tracker.UserFrom(ctx)
}
