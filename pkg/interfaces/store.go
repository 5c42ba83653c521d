package interfaces

import (
	"context"

	"tutorhub/pkg/types"
)

// ProfileStore is the persistence collaborator. It durably records delivered
// messages and profile field updates (assigned tutor, push token). Store
// failures are non-fatal to routing: the router logs them and carries on.
type ProfileStore interface {
	// GetProfile retrieves a profile by username. Returns an error matching
	// types.ErrParticipantNotFound when no such profile exists.
	GetProfile(ctx context.Context, username string) (*types.Profile, error)

	// CreateProfile persists a brand-new profile.
	CreateProfile(ctx context.Context, profile *types.Profile) error

	// UpdateProfile persists the mutable profile fields (assigned tutor,
	// push token).
	UpdateProfile(ctx context.Context, profile *types.Profile) error

	// ListProfiles returns every stored profile. Used for the tutor-online
	// alert sweep, which also reaches participants that are not connected.
	ListProfiles(ctx context.Context) ([]*types.Profile, error)

	// AppendMessage records a delivered message against a participant's
	// durable history.
	AppendMessage(ctx context.Context, owner string, msg *types.Message) error

	// MessagesFor returns a participant's durable history in chronological
	// order, for replay on reconnect.
	MessagesFor(ctx context.Context, username string) ([]*types.Message, error)
}

// Notifier is the out-of-band alert collaborator. Delivery is best-effort
// and fire-and-forget; failures are logged, never propagated to routing.
type Notifier interface {
	// SendTutorOnlineAlert pushes a "tutor came online" alert to the device
	// identified by token.
	SendTutorOnlineAlert(ctx context.Context, token, recipient, tutor string) error
}
