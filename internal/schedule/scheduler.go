package schedule

import (
	"context"
	"sync"

	"moad/internal/quota"
)

// Default queue depth applied when SchedulerConfig leaves it unset.
const defaultMaxQueueDepth = 32

// pending is one caller waiting for admission. It lives only inside the
// model's queue and is discarded once admitted or canceled.
type pending struct {
	ctx             context.Context
	estimatedTokens int
	done            chan error
}

// modelQueue serializes admissions for one model. A single dispatcher
// goroutine drains the channel, so callers are served strictly in enqueue
// order while other models proceed independently.
type modelQueue struct {
	ch chan *pending
}

// Scheduler sits in front of the quota tracker: one FIFO queue per model,
// fail-fast when a queue is full.
type Scheduler struct {
	mu       sync.Mutex
	tracker  *quota.Tracker
	maxDepth int
	queues   map[string]*modelQueue
}

// SchedulerConfig carries scheduler tunables.
type SchedulerConfig struct {
	MaxQueueDepth int
}

// New builds a scheduler over tracker.
func New(tracker *quota.Tracker, cfg SchedulerConfig) *Scheduler {
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	return &Scheduler{
		tracker:  tracker,
		maxDepth: depth,
		queues:   make(map[string]*modelQueue),
	}
}

func (s *Scheduler) queueFor(modelID string) *modelQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[modelID]; ok {
		return q
	}
	q := &modelQueue{ch: make(chan *pending, s.maxDepth)}
	s.queues[modelID] = q
	go s.dispatch(modelID, q)
	return q
}

// dispatch serves one model's queue for the process lifetime.
func (s *Scheduler) dispatch(modelID string, q *modelQueue) {
	for p := range q.ch {
		if err := p.ctx.Err(); err != nil {
			p.done <- err
			continue
		}
		p.done <- s.tracker.Admit(p.ctx, modelID, p.estimatedTokens)
	}
}

// Schedule enqueues a call for modelID and blocks until the quota tracker
// admits it. If the model's queue is full it fails immediately with an
// overloaded error instead of queuing indefinitely.
func (s *Scheduler) Schedule(ctx context.Context, modelID string, estimatedTokens int) error {
	q := s.queueFor(modelID)
	p := &pending{
		ctx:             ctx,
		estimatedTokens: estimatedTokens,
		done:            make(chan error, 1),
	}
	select {
	case q.ch <- p:
	default:
		return ErrOverloaded(modelID)
	}
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		// The dispatcher will observe the canceled context and skip the entry.
		return ctx.Err()
	}
}

// QueueLen reports how many callers are queued for modelID.
func (s *Scheduler) QueueLen(modelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[modelID]; ok {
		return len(q.ch)
	}
	return 0
}

// MaxQueueDepth returns the configured per-model depth.
func (s *Scheduler) MaxQueueDepth() int { return s.maxDepth }
