package ports

import (
	"context"

	"github.com/bnema/mxload/internal/domain"
)

// RosterSource yields the ordered user roster a load test runs against.
type RosterSource interface {
	Load(ctx context.Context) ([]domain.Credential, error)
}

// TokenStore persists the credential registry between runs. Load tolerates
// a missing file; Write replaces the file in full.
type TokenStore interface {
	Load(ctx context.Context) (map[string]domain.TokenUpdate, error)
	Write(ctx context.Context, tokens map[string]domain.TokenUpdate) error
}

// RoomPlanSource yields the externally generated room membership
// assignment.
type RoomPlanSource interface {
	Load(ctx context.Context) (domain.RoomAssignment, error)
}
