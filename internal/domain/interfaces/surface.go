package interfaces

import (
	"context"
	"net/url"

	"certagent/internal/domain/types"
)

// Surface is an external authentication surface reachable by messages.
type Surface interface {
	// Events delivers messages posted by the surface.
	Events() <-chan types.SurfaceEvent
	// Post sends msg to the surface, addressed to targetOrigin.
	Post(ctx context.Context, msg any, targetOrigin string) error
	// Closed reports whether the user or provider closed the surface.
	Closed() bool
	// Close tears the surface down. It is safe to call more than once.
	Close() error
}

// SurfaceOpener opens surfaces pointing at a provider URL.
type SurfaceOpener interface {
	Open(ctx context.Context, target *url.URL, features string) (Surface, error)
}

// IdleDetector observes user activity and fires callbacks after inactivity.
type IdleDetector interface {
	RegisterCallback(fn func())
	Exit()
}
