package compute

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"terrainstream/internal/terrain"
)

// CPUBackend evaluates the field on goroutines.
type CPUBackend struct {
	field terrain.Field

	mu   sync.Mutex
	jobs map[JobHandle]*cpuJob
}

type cpuJob struct {
	done   chan struct{}
	cancel context.CancelFunc
	grid   *terrain.DensityGrid
	err    error
}

func NewCPUBackend(field terrain.Field) *CPUBackend {
	return &CPUBackend{field: field, jobs: make(map[JobHandle]*cpuJob)}
}

func (b *CPUBackend) Submit(ctx context.Context, params Params) (JobHandle, error) {
	lat, err := params.Lattice()
	if err != nil {
		return JobHandle{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	job := &cpuJob{done: make(chan struct{}), cancel: cancel}
	h := JobHandle{ID: uuid.New()}

	b.mu.Lock()
	b.jobs[h] = job
	b.mu.Unlock()

	go func() {
		defer close(job.done)
		job.grid, job.err = terrain.Generate(ctx, b.field, lat)
	}()
	return h, nil
}

func (b *CPUBackend) lookup(h JobHandle) (*cpuJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return job, nil
}

func (b *CPUBackend) Poll(h JobHandle) (*terrain.DensityGrid, bool, error) {
	job, err := b.lookup(h)
	if err != nil {
		return nil, false, err
	}
	select {
	case <-job.done:
		return job.grid, true, job.err
	default:
		return nil, false, nil
	}
}

func (b *CPUBackend) Wait(ctx context.Context, h JobHandle) (*terrain.DensityGrid, error) {
	job, err := b.lookup(h)
	if err != nil {
		return nil, err
	}
	select {
	case <-job.done:
		return job.grid, job.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release forgets the handle and stops its evaluation if still running.
func (b *CPUBackend) Release(h JobHandle) {
	b.mu.Lock()
	job, ok := b.jobs[h]
	delete(b.jobs, h)
	b.mu.Unlock()
	if ok {
		job.cancel()
	}
}

// Outstanding reports handles not yet released.
func (b *CPUBackend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}
