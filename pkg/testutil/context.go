package testutil

import (
	"context"
	"time"

	"doria/pkg/requestcontext"
)

// FixedTime is the clock used across fixtures so assertions on timestamps are
// stable.
var FixedTime = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

// Context returns a background context with a pinned clock.
func Context() context.Context {
	return requestcontext.WithTime(context.Background(), FixedTime)
}

// ContextAt returns a background context with the clock pinned to t.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// ClientActor returns an actor scoped to the given repository client.
func ClientActor(clientID string) requestcontext.Actor {
	return requestcontext.Actor{ID: clientID, ClientID: clientID, Role: "client_admin"}
}
