package daemon

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/modoterra/pricewatch/pkg/config"
	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/logring"
	"github.com/modoterra/pricewatch/pkg/procstat"
	"github.com/modoterra/pricewatch/pkg/worker"
)

var (
	ErrMainDisabled  = errors.New("main worker disabled: worker configuration is missing")
	ErrUnknownWorker = errors.New("unknown worker")
	ErrClosed        = errors.New("supervisor is shut down")
)

// MainWorkerID identifies the long-lived scraping worker across restarts.
var MainWorkerID = core.WorkerID(core.KindMain, "scraper")

// maxFinishedImports bounds how many ended import jobs Workers reports.
const maxFinishedImports = 50

// importJob is one fire-and-forget import run.
type importJob struct {
	id       string
	link     string
	queuedAt time.Time
	cancel   context.CancelFunc
	handle   *worker.Handle // nil while queued
	result   *worker.Result
	canceled bool
}

// Supervisor runs the main scraping worker with a constant cooldown between
// runs, and import jobs beside it. All workers write to one log ring.
type Supervisor struct {
	logger *slog.Logger
	ring   *logring.Ring
	sem    *semaphore.Weighted // nil when imports are unbounded
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once

	mu        sync.RWMutex
	cfg       config.Config
	state     core.Status
	disabled  bool
	closed    bool
	main      *worker.Handle
	last      *worker.Result
	spawns    int
	wantStart bool
	timer     *time.Timer
	timerGen  int
	restartAt time.Time
	imports   map[string]*importJob
}

// NewSupervisor creates the supervisor. Nothing is spawned until Start.
func NewSupervisor(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Supervisor {
	sctx, cancel := context.WithCancel(ctx)
	s := &Supervisor{
		logger:  logger,
		ring:    logring.New(cfg.Supervisor.LogCapacity),
		ctx:     sctx,
		cancel:  cancel,
		cfg:     *cfg,
		state:   core.StatusStopped,
		imports: make(map[string]*importJob),
	}
	if n := cfg.Supervisor.MaxImports; n > 0 {
		s.sem = semaphore.NewWeighted(int64(n))
	}
	return s
}

// Start launches the main worker. Only the first call has any effect.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.main != nil {
			return
		}
		if missing := s.cfg.Worker.Missing(); len(missing) > 0 {
			s.disabled = true
			s.state = core.StatusDisabled
			s.note(MainWorkerID, fmt.Sprintf("Main worker disabled: missing %s", strings.Join(missing, ", ")))
			s.logger.Error("main worker disabled", "missing", missing)
			return
		}
		s.spawnMainLocked()
	})
}

// spawnMainLocked starts a new main handle. Callers hold s.mu.
func (s *Supervisor) spawnMainLocked() {
	w := s.cfg.Worker
	s.wg.Add(1)
	h := worker.Spawn(s.ctx, worker.Spec{
		ID:        MainWorkerID,
		Kind:      core.KindMain,
		Path:      w.Path,
		Args:      w.Command(config.ModeScrape),
		Env:       w.Environ(),
		Dir:       w.Dir,
		StopGrace: s.cfg.Supervisor.StopGrace,
	}, worker.Callbacks{
		Output: s.onOutput,
		Exit:   s.onMainExit,
	})
	s.main = h
	s.spawns++
	s.state = core.StatusRunning
	s.restartAt = time.Time{}
	if pid := h.PID(); pid != 0 {
		s.logger.Info("process started", "id", MainWorkerID, "pid", pid, "path", w.Path)
	}
}

func (s *Supervisor) onOutput(h *worker.Handle, stream core.Stream, line string) {
	s.ring.Append(h.ID(), stream, line)
}

func (s *Supervisor) onMainExit(h *worker.Handle, res worker.Result) {
	defer s.wg.Done()

	// A cancelled supervisor context stopped the process; that is not a crash.
	stopping := s.ctx.Err() != nil
	if stopping {
		res.Canceled = true
	}
	if res.StreamErr != nil {
		s.note(MainWorkerID, fmt.Sprintf("Output stream error: %v", res.StreamErr))
	}
	s.note(MainWorkerID, res.String())
	s.logExit(MainWorkerID, res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if h != s.main {
		return
	}
	s.last = &res

	switch {
	case s.closed || stopping:
		s.state = core.StatusStopped
		s.wantStart = false
	case s.wantStart:
		s.wantStart = false
		s.note(MainWorkerID, "Starting main worker")
		s.spawnMainLocked()
	case s.state == core.StatusStopped:
		s.note(MainWorkerID, "Main worker stopped")
	default:
		s.scheduleRestartLocked()
	}
}

// scheduleRestartLocked arms the cooldown timer. Callers hold s.mu.
func (s *Supervisor) scheduleRestartLocked() {
	cooldown := s.cfg.Supervisor.Cooldown
	s.state = core.StatusCoolingDown
	s.restartAt = time.Now().Add(cooldown)
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(cooldown, func() { s.restartMain(gen) })
	s.note(MainWorkerID, fmt.Sprintf("Restarting main worker in %s", cooldown))
	s.logger.Info("restart scheduled", "id", MainWorkerID, "cooldown", cooldown, "at", s.restartAt)
}

func (s *Supervisor) restartMain(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.timerGen || s.state != core.StatusCoolingDown {
		return
	}
	s.timer = nil
	s.spawnMainLocked()
}

func (s *Supervisor) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
	s.restartAt = time.Time{}
}

// StopMain stops the main worker, or cancels its pending restart, and keeps
// it stopped until StartMain.
func (s *Supervisor) StopMain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.disabled {
		return ErrMainDisabled
	}
	s.stopTimerLocked()
	s.wantStart = false
	if s.state == core.StatusStopped {
		return nil
	}
	s.state = core.StatusStopped
	if s.main != nil && s.main.Running() {
		s.note(MainWorkerID, "Stopping main worker")
		s.main.Cancel()
	} else {
		s.note(MainWorkerID, "Main worker restart canceled")
	}
	s.logger.Info("main worker stopped", "id", MainWorkerID)
	return nil
}

// StartMain starts the main worker now, skipping any remaining cooldown. If
// a stopped worker is still shutting down, the start happens once it exits.
func (s *Supervisor) StartMain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.disabled || len(s.cfg.Worker.Missing()) > 0 {
		return ErrMainDisabled
	}
	if s.main != nil && !s.isMainDone() {
		if s.state == core.StatusStopped {
			s.wantStart = true
		}
		return nil
	}
	s.stopTimerLocked()
	s.note(MainWorkerID, "Starting main worker")
	s.spawnMainLocked()
	return nil
}

// isMainDone reports whether the current main handle has delivered its exit.
func (s *Supervisor) isMainDone() bool {
	select {
	case <-s.main.Done():
		return true
	default:
		_, ok := s.main.Result()
		return ok
	}
}

// RunImport starts an import job for link and returns its id. Requests are
// always accepted: over the concurrency limit the job waits for a free
// slot, and with missing worker configuration a diagnostic line is logged
// instead.
func (s *Supervisor) RunImport(link string) string {
	id := core.WorkerID(core.KindImport, uuid.NewString())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.note(id, "Import job not started: supervisor is shutting down")
		return id
	}
	if missing := s.cfg.Worker.Missing(); len(missing) > 0 {
		s.mu.Unlock()
		s.note(id, fmt.Sprintf("Import job not started: missing %s", strings.Join(missing, ", ")))
		s.logger.Error("import job not started", "id", id, "link", link, "missing", missing)
		return id
	}
	ctx, cancel := context.WithCancel(s.ctx)
	job := &importJob{
		id:       id,
		link:     link,
		queuedAt: time.Now(),
		cancel:   cancel,
	}
	s.imports[id] = job
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("import job requested", "id", id, "link", link)
	go s.runImport(ctx, job)
	return id
}

func (s *Supervisor) runImport(ctx context.Context, job *importJob) {
	defer s.wg.Done()
	defer job.cancel()

	if s.sem != nil {
		if !s.sem.TryAcquire(1) {
			s.note(job.id, "Import job queued: waiting for a free slot")
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.note(job.id, "Import job canceled before start")
				s.endQueued(job)
				return
			}
		}
		defer s.sem.Release(1)
	}

	s.mu.Lock()
	if s.closed || job.canceled {
		s.mu.Unlock()
		s.note(job.id, "Import job canceled before start")
		s.endQueued(job)
		return
	}
	w := s.cfg.Worker
	if missing := w.Missing(); len(missing) > 0 {
		s.mu.Unlock()
		s.note(job.id, fmt.Sprintf("Import job not started: missing %s", strings.Join(missing, ", ")))
		s.endQueued(job)
		return
	}
	h := worker.Spawn(ctx, worker.Spec{
		ID:        job.id,
		Kind:      core.KindImport,
		Path:      w.Path,
		Args:      w.Command(config.ModeImport, job.link),
		Env:       w.Environ(),
		Dir:       w.Dir,
		StopGrace: s.cfg.Supervisor.StopGrace,
	}, worker.Callbacks{
		Output: s.onOutput,
		Exit:   s.onImportExit,
	})
	job.handle = h
	s.mu.Unlock()

	if pid := h.PID(); pid != 0 {
		s.note(job.id, fmt.Sprintf("Import job started: %s", job.link))
		s.logger.Info("process started", "id", job.id, "pid", pid, "link", job.link)
	}
	<-h.Done()
}

// endQueued records a job that never got a process.
func (s *Supervisor) endQueued(job *importJob) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	job.result = &worker.Result{ExitCode: -1, Canceled: true, Started: now, Stopped: now}
	s.pruneImportsLocked()
}

func (s *Supervisor) onImportExit(h *worker.Handle, res worker.Result) {
	if res.StreamErr != nil {
		s.note(h.ID(), fmt.Sprintf("Output stream error: %v", res.StreamErr))
	}
	line := importExitLine(res)
	if s.ctx.Err() != nil && res.Err == nil {
		res.Canceled = true
		line = "Import job stopped: supervisor is shutting down"
	}
	s.note(h.ID(), line)
	s.logExit(h.ID(), res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.imports[h.ID()]; ok {
		job.result = &res
	}
	s.pruneImportsLocked()
}

func importExitLine(res worker.Result) string {
	switch {
	case res.Err != nil:
		return fmt.Sprintf("Import job failed to start: %v", res.Err)
	case res.Signal != "":
		return fmt.Sprintf("Import job terminated by signal: %s", res.Signal)
	default:
		return fmt.Sprintf("Import job exited with code: %d", res.ExitCode)
	}
}

// pruneImportsLocked forgets the oldest ended jobs beyond maxFinishedImports.
func (s *Supervisor) pruneImportsLocked() {
	var ended []*importJob
	for _, job := range s.imports {
		if job.result != nil {
			ended = append(ended, job)
		}
	}
	if len(ended) <= maxFinishedImports {
		return
	}
	slices.SortFunc(ended, func(a, b *importJob) int {
		return a.result.Stopped.Compare(b.result.Stopped)
	})
	for _, job := range ended[:len(ended)-maxFinishedImports] {
		delete(s.imports, job.id)
	}
}

// CancelWorker stops the main worker (like StopMain) or an import job,
// whether running or still queued.
func (s *Supervisor) CancelWorker(id string) error {
	kind, _, err := core.ParseWorkerID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownWorker, err)
	}
	if kind == core.KindMain {
		if id != MainWorkerID {
			return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
		}
		return s.StopMain()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	job, ok := s.imports[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	if job.result != nil || job.canceled {
		return nil
	}
	job.canceled = true
	if job.handle != nil {
		job.handle.Cancel()
	}
	job.cancel()
	s.logger.Info("import job canceled", "id", id)
	return nil
}

// ReadLog returns the log as "<timestamp> <text>" lines, most recent first.
func (s *Supervisor) ReadLog() []string {
	entries := s.ring.Snapshot()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e.Format()
	}
	return out
}

// Entries returns the structured log, most recent first.
func (s *Supervisor) Entries() []core.LogLine {
	entries := s.ring.Snapshot()
	slices.Reverse(entries)
	return entries
}

// Subscribe returns a channel receiving every new log line.
func (s *Supervisor) Subscribe(buffer int) <-chan core.LogLine {
	return s.ring.Subscribe(buffer)
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Supervisor) Unsubscribe(ch <-chan core.LogLine) {
	s.ring.Unsubscribe(ch)
}

// Workers returns the main worker followed by known import jobs, oldest first.
func (s *Supervisor) Workers() []core.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := []core.Worker{s.mainViewLocked(now)}

	jobs := make([]*importJob, 0, len(s.imports))
	for _, job := range s.imports {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *importJob) int {
		if c := a.queuedAt.Compare(b.queuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	for _, job := range jobs {
		out = append(out, s.importView(job, now))
	}
	return out
}

func (s *Supervisor) mainViewLocked(now time.Time) core.Worker {
	w := core.Worker{
		ID:     MainWorkerID,
		Kind:   core.KindMain,
		Status: s.state,
		Args:   s.cfg.Worker.Command(config.ModeScrape),
	}
	if s.spawns > 1 {
		w.Restarts = s.spawns - 1
	}
	if !s.restartAt.IsZero() {
		at := s.restartAt
		w.RestartAt = &at
	}
	if s.last != nil {
		code := s.last.ExitCode
		w.ExitCode = &code
	}
	if s.main != nil {
		w.Args = s.main.Args()
		w.StartedAt = s.main.StartedAt()
		fillProcess(&w, s.main, now)
	}
	return w
}

func (s *Supervisor) importView(job *importJob, now time.Time) core.Worker {
	w := core.Worker{
		ID:        job.id,
		Kind:      core.KindImport,
		Status:    core.StatusQueued,
		Link:      job.link,
		StartedAt: job.queuedAt,
	}
	if job.canceled {
		w.Status = core.StatusStopped
	}
	if job.handle != nil {
		w.Args = job.handle.Args()
		w.StartedAt = job.handle.StartedAt()
		fillProcess(&w, job.handle, now)
	}
	if job.result != nil {
		code := job.result.ExitCode
		w.ExitCode = &code
		w.Status = core.StatusExited
		if job.result.Canceled {
			w.Status = core.StatusStopped
		}
	}
	return w
}

// fillProcess adds live process figures for a running handle. A worker
// already marked stopped keeps that status while it finishes exiting.
func fillProcess(w *core.Worker, h *worker.Handle, now time.Time) {
	if !h.Running() {
		return
	}
	if w.Status != core.StatusStopped {
		w.Status = core.StatusRunning
	}
	w.PID = h.PID()
	w.UptimeSec = uint64(now.Sub(h.StartedAt()).Seconds())
	if st, err := procstat.Read(w.PID); err == nil {
		w.MemBytes = st.RSSBytes
	}
}

// Reconfigure applies new worker settings, cooldown and stop grace to future
// spawns. Log capacity and the import limit are fixed at construction.
func (s *Supervisor) Reconfigure(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	old := s.cfg
	s.cfg.Worker = cfg.Worker
	s.cfg.Supervisor.Cooldown = cfg.Supervisor.Cooldown
	s.cfg.Supervisor.StopGrace = cfg.Supervisor.StopGrace

	if cfg.Supervisor.LogCapacity != old.Supervisor.LogCapacity {
		s.logger.Warn("log capacity change needs a restart", "current", old.Supervisor.LogCapacity, "configured", cfg.Supervisor.LogCapacity)
	}
	if cfg.Supervisor.MaxImports != old.Supervisor.MaxImports {
		s.logger.Warn("import limit change needs a restart", "current", old.Supervisor.MaxImports, "configured", cfg.Supervisor.MaxImports)
	}
	s.note(MainWorkerID, "Configuration reloaded")
	s.logger.Info("supervisor reconfigured", "worker", cfg.Worker.Path, "cooldown", cfg.Supervisor.Cooldown)
}

// Shutdown stops any pending restart, cancels every worker and waits for them
// to exit or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	if s.state != core.StatusDisabled {
		s.state = core.StatusStopped
	}
	var handles []*worker.Handle
	if s.main != nil {
		handles = append(handles, s.main)
	}
	for _, job := range s.imports {
		job.canceled = true
		if job.handle != nil {
			handles = append(handles, job.handle)
		}
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// note writes a supervisor line to the ring.
func (s *Supervisor) note(id, line string) {
	s.ring.Append(id, core.StreamSupervisor, line)
}

func (s *Supervisor) logExit(id string, res worker.Result) {
	attrs := []any{"id", id, "exit_code", res.ExitCode, "uptime", res.Stopped.Sub(res.Started).Round(time.Millisecond)}
	if res.Signal != "" {
		attrs = append(attrs, "signal", res.Signal)
	}
	switch {
	case res.Err != nil:
		s.logger.Error("process failed to start", append(attrs, "err", res.Err)...)
	case res.Success() || res.Canceled:
		s.logger.Info("process exited", attrs...)
	default:
		s.logger.Warn("process exited", attrs...)
	}
}
