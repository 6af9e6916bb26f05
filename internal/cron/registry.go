package cron

import "context"

// Job is one unit of scheduled maintenance: the reconciliation sweep, outbox
// retention, pending-payment cleanup. Run is expected to be idempotent, the
// scheduler retries nothing and simply fires again next cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker runs each cycle, in registration order.
// Order matters: the sweep runs before cleanup so a placeholder is never
// reaped in the same cycle its payment settles.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, skipping nil entries so
// callers can pass optional jobs unconditionally.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job to the cycle.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
