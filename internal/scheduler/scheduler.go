package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var (
	ErrAlreadyRunning = errors.New("check already running")
	ErrInactive       = errors.New("monitoring is stopped")
	ErrNotStarted     = errors.New("scheduler not started")
)

// HistoryRecorder appends finished checks to the history.
type HistoryRecorder interface {
	Record(ctx context.Context, id domain.TargetID, o domain.Outcome) (domain.CheckResult, error)
}

// AlertSink receives state transitions. Dispatch must not block.
type AlertSink interface {
	Dispatch(ev domain.AlertEvent)
}

type Config struct {
	Workers int
	Resync  time.Duration
}

type job struct {
	id     domain.TargetID
	manual bool
}

// Scheduler probes every active target once per check interval. Each target
// is either waiting in the due queue or running on a worker, never both.
type Scheduler struct {
	Logger  *zap.Logger
	Targets repo.TargetStore
	Checker probe.Checker
	History HistoryRecorder
	Alerts  AlertSink
	Clock   Clock

	workers int
	resync  time.Duration

	mu      sync.Mutex
	queue   dueQueue
	index   map[domain.TargetID]*item
	running map[domain.TargetID]bool
	obs     []func(domain.Target)

	jobs chan job
	wake chan struct{}
	ctx  context.Context
	wg   sync.WaitGroup
}

func New(
	logger *zap.Logger,
	targets repo.TargetStore,
	checker probe.Checker,
	history HistoryRecorder,
	alerts AlertSink,
	cfg Config,
) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 8
	}
	if cfg.Resync <= 0 {
		cfg.Resync = time.Minute
	}
	return &Scheduler{
		Logger:  logger,
		Targets: targets,
		Checker: checker,
		History: history,
		Alerts:  alerts,
		Clock:   SystemClock{},
		workers: cfg.Workers,
		resync:  cfg.Resync,
		index:   make(map[domain.TargetID]*item),
		running: make(map[domain.TargetID]bool),
		jobs:    make(chan job),
		wake:    make(chan struct{}, 1),
	}
}

// Subscribe registers fn to receive every target after a check was
// recorded. fn runs on the worker goroutine and must be quick.
func (s *Scheduler) Subscribe(fn func(domain.Target)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, fn)
}

// Start loads the active targets and launches the driver, the workers and
// the resync loop. They stop when ctx is cancelled; Wait blocks until then.
func (s *Scheduler) Start(ctx context.Context) error {
	active, err := s.Targets.ListActive(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	for _, t := range active {
		s.Schedule(t)
	}

	s.startWorkers(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.drive(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.resyncLoop(ctx)
	}()

	s.Logger.Info("scheduler_started",
		zap.Int("targets", len(active)),
		zap.Int("workers", s.workers),
		zap.Duration("resync", s.resync),
	)
	return nil
}

// Wait blocks until every scheduler goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	s.Logger.Info("scheduler_stopped")
}

func (s *Scheduler) startWorkers(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-s.jobs:
					s.runJob(ctx, j)
				}
			}
		}()
	}
}

// Schedule (re)queues t at its next due time. Inactive targets are removed.
// A t whose last check is older than the one the queue already knows about
// is ignored.
func (s *Scheduler) Schedule(t domain.Target) {
	if !t.IsActive {
		s.Unschedule(t.ID)
		return
	}
	s.mu.Lock()
	due := s.nextDue(t)
	it, ok := s.index[t.ID]
	switch {
	case !ok:
		it = &item{id: t.ID, due: due, checked: lastChecked(t)}
		s.index[t.ID] = it
		heap.Push(&s.queue, it)
	case it.index >= 0 && lastChecked(t).Before(it.checked):
		// snapshot older than a check that already finished
	case it.index >= 0:
		it.due = due
		it.checked = lastChecked(t)
		heap.Fix(&s.queue, it.index)
	default:
		// running; finish() requeues from the recorded state
	}
	s.mu.Unlock()
	s.signal()
}

// Unschedule stops automatic probing of id. A probe already in flight
// completes but is not requeued.
func (s *Scheduler) Unschedule(id domain.TargetID) {
	s.mu.Lock()
	if it, ok := s.index[id]; ok {
		if it.index >= 0 {
			heap.Remove(&s.queue, it.index)
		}
		delete(s.index, id)
	}
	s.mu.Unlock()
	s.signal()
}

// CheckNow runs an immediate probe through the worker pool. A target whose
// probe is in flight is not probed twice; the call returns ErrAlreadyRunning.
func (s *Scheduler) CheckNow(ctx context.Context, id domain.TargetID) error {
	t, err := s.Targets.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.IsActive {
		return ErrInactive
	}

	s.mu.Lock()
	runCtx := s.ctx
	if runCtx == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.running[id] {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running[id] = true
	if it, ok := s.index[id]; ok {
		if it.index >= 0 {
			heap.Remove(&s.queue, it.index)
		}
	} else {
		s.index[id] = &item{id: id, index: -1}
	}
	s.mu.Unlock()

	j := job{id: id, manual: true}
	select {
	case s.jobs <- j:
	default:
		// all workers busy; queue behind them without holding the caller
		go func() {
			select {
			case s.jobs <- j:
			case <-runCtx.Done():
			}
		}()
	}
	s.Logger.Info("check_now_queued", zap.String("target_id", string(id)))
	return nil
}

// Running reports whether a probe of id is in flight.
func (s *Scheduler) Running(id domain.TargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drive sleeps until the earliest due time or a wake signal, then hands
// every due target to the pool.
func (s *Scheduler) drive(ctx context.Context) {
	for {
		for _, id := range s.popDue() {
			select {
			case s.jobs <- job{id: id}:
			case <-ctx.Done():
				return
			}
		}

		var (
			timer  Timer
			timerC <-chan time.Time
		)
		if next, ok := s.peekDue(); ok {
			d := next.Sub(s.Clock.Now())
			if d < 0 {
				d = 0
			}
			timer = s.Clock.NewTimer(d)
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// popDue removes the due targets from the queue and marks them running.
func (s *Scheduler) popDue() []domain.TargetID {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Clock.Now()
	var due []domain.TargetID
	for s.queue.Len() > 0 && !s.queue[0].due.After(now) {
		it := heap.Pop(&s.queue).(*item)
		if s.running[it.id] {
			continue
		}
		s.running[it.id] = true
		due = append(due, it.id)
	}
	return due
}

func (s *Scheduler) peekDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].due, true
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	log := s.Logger.With(zap.String("target_id", string(j.id)), zap.Bool("manual", j.manual))

	t, err := s.Targets.Get(ctx, j.id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("scheduler_load_error", zap.Error(err))
		}
		s.finish(j.id, nil)
		return
	}
	if !t.IsActive {
		s.finish(j.id, &t)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, t.Timeout())
	out := s.Checker.Check(pctx, probe.SpecFor(t))
	cancel()
	if ctx.Err() != nil {
		// shutting down; an aborted probe says nothing about the target
		s.finish(j.id, nil)
		return
	}
	out.Manual = j.manual
	if out.CheckedAt.IsZero() {
		out.CheckedAt = s.Clock.Now().UTC()
	}

	updated, kind, err := s.Targets.RecordCheckOutcome(ctx, t.ID, out)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug("scheduler_target_gone")
			s.finish(j.id, nil)
			return
		}
		log.Warn("scheduler_record_error", zap.Error(err))
		s.finish(j.id, &t)
		return
	}
	if _, err := s.History.Record(ctx, t.ID, out); err != nil {
		log.Warn("scheduler_history_error", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("url", t.URL),
		zap.String("result", string(out.Status)),
		zap.String("status", string(updated.Status)),
		zap.Int("consecutive_failures", updated.ConsecutiveFailures),
	}
	if out.ResponseTimeMS != nil {
		fields = append(fields, zap.Float64("response_ms", *out.ResponseTimeMS))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}
	log.Debug("probe_done", fields...)

	if kind != domain.AlertNone && s.Alerts != nil {
		s.Alerts.Dispatch(domain.AlertEvent{Kind: kind, Target: updated, Outcome: out, At: out.CheckedAt})
	}
	s.publish(updated)
	s.finish(j.id, &updated)
}

// finish clears the running mark and requeues the target if it is still
// wanted. t is the latest known state, nil when the target is gone.
func (s *Scheduler) finish(id domain.TargetID, t *domain.Target) {
	s.mu.Lock()
	delete(s.running, id)
	if it, ok := s.index[id]; ok && it.index < 0 {
		if t == nil || !t.IsActive {
			delete(s.index, id)
		} else {
			it.due = s.nextDue(*t)
			it.checked = lastChecked(*t)
			heap.Push(&s.queue, it)
		}
	}
	s.mu.Unlock()
	s.signal()
}

// nextDue must be called with s.mu held.
func (s *Scheduler) nextDue(t domain.Target) time.Time {
	if due := t.NextDue(); !due.IsZero() {
		return due
	}
	return s.Clock.Now()
}

func (s *Scheduler) publish(t domain.Target) {
	s.mu.Lock()
	obs := make([]func(domain.Target), len(s.obs))
	copy(obs, s.obs)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(t)
	}
}

// resyncLoop reconciles the queue with the store so targets changed by
// another process are picked up.
func (s *Scheduler) resyncLoop(ctx context.Context) {
	t := time.NewTicker(s.resync)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Resync(ctx); err != nil {
				s.Logger.Warn("scheduler_resync_error", zap.Error(err))
			}
		}
	}
}

// Resync schedules every active target and drops queued ones that are no
// longer active.
func (s *Scheduler) Resync(ctx context.Context) error {
	active, err := s.Targets.ListActive(ctx)
	if err != nil {
		return err
	}
	keep := make(map[domain.TargetID]bool, len(active))
	for _, t := range active {
		keep[t.ID] = true
	}

	s.mu.Lock()
	var stale []domain.TargetID
	for id, it := range s.index {
		if !keep[id] && it.index >= 0 {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Unschedule(id)
	}
	for _, t := range active {
		s.Schedule(t)
	}
	return nil
}
