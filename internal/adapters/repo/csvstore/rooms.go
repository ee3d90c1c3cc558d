package csvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/ports"
)

// RoomFile reads the externally generated rooms.json assignment: a JSON
// object mapping room name to its ordered member usernames.
type RoomFile struct {
	path string
}

var _ ports.RoomPlanSource = (*RoomFile)(nil)

func NewRoomFile(path string) (*RoomFile, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	return &RoomFile{path: path}, nil
}

func (r *RoomFile) Load(ctx context.Context) (domain.RoomAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read rooms file: %w", err)
	}

	var assignment domain.RoomAssignment
	if err := json.Unmarshal(data, &assignment); err != nil {
		return nil, fmt.Errorf("decode rooms file: %w", err)
	}

	return assignment, nil
}
