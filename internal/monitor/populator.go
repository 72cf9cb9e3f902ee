// Copyright 2025 James Ross
package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/registry"
)

// Populator periodically tops up the pending job count, generating
// synthetic work in-process rather than scanning a filesystem or queue,
// since this coordinator's job inputs are randomly generated operands.
type Populator struct {
	jobs           *jobs.Service
	registry       *registry.Registry
	batchSize      int
	pendingCeiling int
	operandRange   float64
	log            *zap.Logger
	history        *History
}

func NewPopulator(j *jobs.Service, reg *registry.Registry, batchSize, pendingCeiling int, log *zap.Logger, historySize int) *Populator {
	return &Populator{
		jobs:           j,
		registry:       reg,
		batchSize:      batchSize,
		pendingCeiling: pendingCeiling,
		operandRange:   1000,
		log:            log,
		history:        NewHistory(historySize),
	}
}

// RunOnce creates up to batchSize jobs, unless the pending ceiling has
// already been reached, in which case it is a no-op cycle. Operations are
// chosen at random from the registry.
func (p *Populator) RunOnce(ctx context.Context) (Report, []string, error) {
	return p.runBatch(ctx, p.batchSize, "")
}

// RunOnceWithBatch is the ad-hoc admin-triggered variant: same ceiling
// enforcement, caller-chosen batch size (POST /jobs/populate's batch_size).
func (p *Populator) RunOnceWithBatch(ctx context.Context, batchSize int) (Report, []string, error) {
	return p.runBatch(ctx, batchSize, "")
}

// RunOnceWithOptions is the ad-hoc admin-triggered variant with both a
// caller-chosen batch size and a pinned operation (POST /jobs/populate's
// batch_size and operation fields). An empty operation falls back to the
// same per-job random choice RunOnce uses.
func (p *Populator) RunOnceWithOptions(ctx context.Context, batchSize int, operation string) (Report, []string, error) {
	return p.runBatch(ctx, batchSize, operation)
}

func (p *Populator) runBatch(ctx context.Context, batchSize int, operation string) (Report, []string, error) {
	start := time.Now()
	pending, err := p.jobs.CountPending(ctx)
	if err != nil {
		r := Report{Monitor: "populator", StartedAt: start, Duration: time.Since(start), Err: err}
		p.history.Record(r)
		return r, nil, err
	}
	room := p.pendingCeiling - pending
	n := batchSize
	if room < n {
		n = room
	}
	if n < 0 {
		n = 0
	}

	ids := make([]string, 0, n)
	names := p.registry.Names()
	for i := 0; i < n; i++ {
		op := operation
		if op == "" {
			op = names[rand.Intn(len(names))]
		}
		a := (rand.Float64()*2 - 1) * p.operandRange
		b := (rand.Float64()*2 - 1) * p.operandRange
		job, err := p.jobs.Create(ctx, a, b, op)
		if err != nil {
			r := Report{Monitor: "populator", StartedAt: start, Duration: time.Since(start), Processed: len(ids), Err: err}
			p.history.Record(r)
			return r, ids, fmt.Errorf("populate job %d/%d: %w", i+1, n, err)
		}
		ids = append(ids, job.ID)
	}

	r := Report{Monitor: "populator", StartedAt: start, Duration: time.Since(start), Processed: len(ids)}
	p.history.Record(r)
	obs.PendingJobs.Set(float64(pending + len(ids)))
	return r, ids, nil
}

func (p *Populator) History() []Report { return p.history.Recent() }
