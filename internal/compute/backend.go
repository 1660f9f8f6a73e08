package compute

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"terrainstream/internal/terrain"
)

var ErrUnknownHandle = errors.New("compute: unknown job handle")

// JobHandle identifies one submitted density evaluation.
type JobHandle struct {
	ID uuid.UUID
}

func (h JobHandle) String() string { return h.ID.String() }

// Backend evaluates density grids asynchronously. Submit never waits for the
// evaluation; Poll reports completion without blocking. Every handle must be
// released once its result has been taken.
type Backend interface {
	Submit(ctx context.Context, params Params) (JobHandle, error)
	Poll(h JobHandle) (*terrain.DensityGrid, bool, error)
	Wait(ctx context.Context, h JobHandle) (*terrain.DensityGrid, error)
	Release(h JobHandle)
}
