package store

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/milestonedb/log"
)

// indexProvisioner requests MilestoneIndex at most once per physical
// collection for the lifetime of the store.
//
// The check and the create are not atomic: two concurrent first accesses to
// the same collection may both issue the request. CreateIndex is idempotent
// at the storage layer, so the duplicate is harmless.
type indexProvisioner struct {
	disabled bool
	logger   log.Logger
	recorder Recorder

	mu      sync.Mutex
	indexed map[string]struct{}
}

func newIndexProvisioner(disabled bool, logger log.Logger, recorder Recorder) *indexProvisioner {
	return &indexProvisioner{
		disabled: disabled,
		logger:   logger,
		recorder: recorder,
		indexed:  make(map[string]struct{}),
	}
}

// ensure provisions the index for name on first access. Failures are
// returned to the caller and leave name unrecorded.
func (p *indexProvisioner) ensure(ctx context.Context, backend Backend, name string) error {
	if !p.shouldCreate(name) {
		return nil
	}
	return p.create(ctx, backend, name)
}

func (p *indexProvisioner) shouldCreate(name string) bool {
	if p.disabled {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, done := p.indexed[name]
	return !done
}

// create always issues the request.
func (p *indexProvisioner) create(ctx context.Context, backend Backend, name string) error {
	p.logger.Debug("creating index %s on %s", MilestoneIndex.Name, name)

	start := time.Now()
	err := backend.CreateIndex(ctx, name, MilestoneIndex)
	p.recorder.ObserveOperation(OperationIndex, name, time.Since(start), err)
	if err != nil {
		p.logger.Error("create index %s on %s: %v", MilestoneIndex.Name, name, err)
		return err
	}

	p.mu.Lock()
	p.indexed[name] = struct{}{}
	p.mu.Unlock()

	p.recorder.IndexCreated(name)
	return nil
}

func (p *indexProvisioner) has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.indexed[name]
	return ok
}
