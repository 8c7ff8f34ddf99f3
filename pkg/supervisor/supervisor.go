// Package supervisor owns the lifecycle of one external process per slot.
//
// Each slot holds at most one tracked process. Installing and removing the
// tracked handle happens under the slot's lock; spawning and killing never
// do. Status and the post-stop sweep go through the OS process table by
// binary name, so processes started outside this session are covered too.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/metrics"
	"github.com/jasonish/meerkat-desktop/pkg/providers/proctable"
)

// DefaultStopTimeout is how long a process gets between SIGTERM and SIGKILL.
const DefaultStopTimeout = 10 * time.Second

// stableRun is how long a process must stay up before its exit stops
// counting towards the restart backoff.
const stableRun = time.Minute

// ProcessTable looks up and kills processes by binary name.
type ProcessTable interface {
	Running(ctx context.Context, name string) (bool, error)
	KillAll(ctx context.Context, name string) (int, error)
}

// Handle describes the tracked process of a slot.
type Handle struct {
	Slot      core.Slot `json:"slot"`
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

type managedProcess struct {
	slot      core.Slot
	spec      core.LaunchSpec
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	runID     string
	startedAt time.Time
	done      chan struct{}
	stopped   atomic.Bool
}

func (p *managedProcess) handle() Handle {
	return Handle{Slot: p.slot, PID: p.cmd.Process.Pid, RunID: p.runID, StartedAt: p.startedAt}
}

// slotState is the per-slot critical section. gen changes on every
// install/take so a pending restart can tell it has been overtaken.
type slotState struct {
	mu       sync.Mutex
	spec     core.LaunchSpec
	proc     *managedProcess
	gen      uint64
	failures int
}

// take removes the tracked process, if any, and returns it together with
// the slot generation it leaves behind.
func (st *slotState) take() (*managedProcess, uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	p := st.proc
	st.proc = nil
	st.gen++
	return p, st.gen
}

// install tracks p if the slot is still at generation gen. It reports false
// when another Start or Stop got in first.
func (st *slotState) install(p *managedProcess, gen uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return false
	}
	st.proc = p
	st.gen++
	return true
}

// Supervisor manages the lifecycle of slot processes.
type Supervisor struct {
	slots  map[core.Slot]*slotState
	mu     sync.Mutex
	table  ProcessTable
	sink   core.Sink
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	closing atomic.Bool
}

// New creates a supervisor. Processes it spawns are killed when ctx is
// cancelled.
func New(ctx context.Context, table ProcessTable, sink core.Sink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		slots:  make(map[core.Slot]*slotState),
		table:  table,
		sink:   sink,
		logger: logger,
		ctx:    sctx,
		cancel: cancel,
	}
}

// Register records the launch spec for a slot without starting it.
func (s *Supervisor) Register(slot core.Slot, spec core.LaunchSpec) {
	st := s.state(slot, true)
	st.mu.Lock()
	st.spec = spec
	st.mu.Unlock()
}

// Slots returns the registered slots in name order.
func (s *Supervisor) Slots() []core.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Slot, 0, len(s.slots))
	for slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Spec returns the launch spec registered for slot.
func (s *Supervisor) Spec(slot core.Slot) (core.LaunchSpec, bool) {
	st := s.state(slot, false)
	if st == nil {
		return core.LaunchSpec{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.spec, st.spec.Executable != ""
}

// Handle returns the tracked process of slot, if there is one.
func (s *Supervisor) Handle(slot core.Slot) (Handle, bool) {
	st := s.state(slot, false)
	if st == nil {
		return Handle{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.proc == nil {
		return Handle{}, false
	}
	return st.proc.handle(), true
}

// Start spawns the process for slot using spec, first terminating any
// process the slot already tracks. spec becomes the slot's registered launch
// spec.
func (s *Supervisor) Start(ctx context.Context, slot core.Slot, spec core.LaunchSpec) (Handle, error) {
	st := s.state(slot, true)
	st.mu.Lock()
	st.spec = spec
	st.failures = 0
	st.mu.Unlock()
	return s.start(ctx, st, slot, spec)
}

// StartRegistered starts slot with its registered spec.
func (s *Supervisor) StartRegistered(ctx context.Context, slot core.Slot) (Handle, error) {
	spec, ok := s.Spec(slot)
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s", core.ErrUnknownSlot, slot)
	}
	return s.Start(ctx, slot, spec)
}

func (s *Supervisor) start(ctx context.Context, st *slotState, slot core.Slot, spec core.LaunchSpec) (Handle, error) {
	old, gen := st.take()
	if old != nil {
		s.logger.Info("replacing running process", "slot", slot, "pid", old.cmd.Process.Pid)
		s.terminate(old)
	}
	return s.launch(ctx, st, slot, spec, gen)
}

// launch spawns the process and tracks it if the slot is still at gen.
func (s *Supervisor) launch(ctx context.Context, st *slotState, slot core.Slot, spec core.LaunchSpec, gen uint64) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	out := s.streamer(slot, spec)
	path, err := prepare(slot, spec, out.Info)
	if err != nil {
		metrics.SpawnFailures.WithLabelValues(string(slot)).Inc()
		return Handle{}, err
	}

	out.Info(fmt.Sprintf("Starting %s with command:", slot))
	out.Info(">>> " + spec.CommandLine())
	out.Info("---")

	pctx, cancel := context.WithCancel(s.ctx)
	cmd := exec.CommandContext(pctx, path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	setSysProcAttr(cmd)
	cmd.Cancel = func() error { return forceKill(cmd.Process) }

	// Plain OS pipes: Wait never closes the read ends, so the readers run
	// to EOF on their own after the process is reaped.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		cancel()
		return Handle{}, &core.SpawnError{Slot: slot, Path: path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		cancel()
		closeAll(stdoutR, stdoutW)
		return Handle{}, &core.SpawnError{Slot: slot, Path: path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	closeAll(stdoutW, stderrW)
	if err != nil {
		cancel()
		closeAll(stdoutR, stderrR)
		metrics.SpawnFailures.WithLabelValues(string(slot)).Inc()
		out.Forward(core.ChannelStderr, fmt.Sprintf("Failed to start %s: %v", slot, err))
		return Handle{}, &core.SpawnError{Slot: slot, Path: path, Err: err}
	}

	p := &managedProcess{
		slot:      slot,
		spec:      spec,
		cmd:       cmd,
		cancel:    cancel,
		runID:     uuid.NewString(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	drained := out.Attach(stdoutR, stderrR)
	go func() {
		<-drained
		closeAll(stdoutR, stderrR)
	}()

	if !st.install(p, gen) {
		s.logger.Info("start overtaken, discarding process", "slot", slot, "pid", cmd.Process.Pid)
		go s.wait(st, p)
		s.terminate(p)
		return Handle{}, fmt.Errorf("%w: %s", core.ErrSuperseded, slot)
	}

	metrics.ProcessStarts.WithLabelValues(string(slot)).Inc()
	metrics.RunningSlots.WithLabelValues(string(slot)).Set(1)
	s.logger.Info("process started", "slot", slot, "pid", cmd.Process.Pid, "run_id", p.runID, "command", spec.CommandLine())

	go s.wait(st, p)

	return p.handle(), nil
}

// Stop terminates the tracked process of slot, then sweeps any process
// still running under the slot's binary name. Stopping an idle slot
// succeeds.
func (s *Supervisor) Stop(ctx context.Context, slot core.Slot) error {
	st := s.state(slot, false)
	if st == nil {
		return fmt.Errorf("%w: %s", core.ErrUnknownSlot, slot)
	}

	p, _ := st.take()
	st.mu.Lock()
	spec := st.spec
	st.mu.Unlock()

	out := s.streamer(slot, spec)
	if p != nil {
		out.Info(fmt.Sprintf("Stopping managed %s process...", slot))
		s.terminate(p)
		out.Info("Managed process terminated")
	}

	s.sweep(ctx, slot, spec, out)
	metrics.RunningSlots.WithLabelValues(string(slot)).Set(0)
	out.Info(fmt.Sprintf("%s has been stopped", slot))
	return nil
}

// Restart stops and restarts slot with its registered spec.
func (s *Supervisor) Restart(ctx context.Context, slot core.Slot) (Handle, error) {
	if err := s.Stop(ctx, slot); err != nil {
		return Handle{}, err
	}
	return s.StartRegistered(ctx, slot)
}

// Status reports whether any process with the slot's binary name is
// running, tracked or not.
func (s *Supervisor) Status(ctx context.Context, slot core.Slot) (bool, error) {
	spec, ok := s.Spec(slot)
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrUnknownSlot, slot)
	}
	running, err := s.table.Running(ctx, spec.BinaryName())
	if err != nil {
		return false, fmt.Errorf("status %s: %w", slot, err)
	}
	return running, nil
}

// StopTracked terminates every tracked process and cancels pending restarts.
// The supervisor stays usable. It does not sweep; see the shutdown package
// for name-based reaping.
func (s *Supervisor) StopTracked() {
	s.mu.Lock()
	states := make([]*slotState, 0, len(s.slots))
	for _, st := range s.slots {
		states = append(states, st)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, st := range states {
		if p, _ := st.take(); p != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.terminate(p)
				metrics.RunningSlots.WithLabelValues(string(p.slot)).Set(0)
			}()
		}
	}
	wg.Wait()
}

// StopAll stops every tracked process and shuts the supervisor down. Later
// starts fail.
func (s *Supervisor) StopAll() {
	s.closing.Store(true)
	defer s.cancel()
	s.StopTracked()
}

func (s *Supervisor) state(slot core.Slot, create bool) *slotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.slots[slot]
	if !ok && create {
		st = &slotState{}
		s.slots[slot] = st
	}
	return st
}

func (s *Supervisor) streamer(slot core.Slot, spec core.LaunchSpec) *OutputStreamer {
	return &OutputStreamer{Slot: slot, Sink: s.sink, StripANSI: spec.StripANSI, Logger: s.logger}
}

// terminate asks p to exit, escalating to SIGKILL after the stop timeout,
// and waits for the exit to be observed. Failures are logged only.
func (s *Supervisor) terminate(p *managedProcess) {
	p.stopped.Store(true)
	pid := p.cmd.Process.Pid

	if err := signalTerm(p.cmd.Process); err != nil && !proctable.Gone(err) {
		s.logger.Warn("terminate", "err", &core.TerminationError{Slot: p.slot, PID: pid, Err: err})
	}

	timeout := p.spec.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	select {
	case <-p.done:
		return
	case <-time.After(timeout):
	}

	s.logger.Warn("process ignored SIGTERM, killing", "slot", p.slot, "pid", pid)
	if err := forceKill(p.cmd.Process); err != nil && !proctable.Gone(err) {
		s.logger.Warn("kill", "err", &core.TerminationError{Slot: p.slot, PID: pid, Err: err})
	}
	select {
	case <-p.done:
	case <-time.After(timeout):
		s.logger.Error("process did not exit after SIGKILL", "slot", p.slot, "pid", pid)
	}
}

// sweep kills every process with the slot's binary name. Finding none is the
// common case and not an error.
func (s *Supervisor) sweep(ctx context.Context, slot core.Slot, spec core.LaunchSpec, out *OutputStreamer) {
	name := spec.BinaryName()
	if name == "" || name == "." {
		return
	}
	out.Info(fmt.Sprintf("Checking for any other %s processes...", name))
	killed, err := s.table.KillAll(ctx, name)
	if err != nil {
		s.logger.Warn("sweep", "slot", slot, "binary", name, "err", err)
	}
	if killed == 0 {
		out.Info(fmt.Sprintf("No other %s processes found", name))
		return
	}
	metrics.SweptProcesses.WithLabelValues(name).Add(float64(killed))
	s.logger.Info("swept untracked processes", "slot", slot, "binary", name, "count", killed)
	out.Info(fmt.Sprintf("Stopped %d untracked %s process(es)", killed, name))
}

// wait reaps p, clears it from the slot if it is still tracked, and applies
// the restart policy for exits nobody asked for.
func (s *Supervisor) wait(st *slotState, p *managedProcess) {
	err := p.cmd.Wait()
	p.cancel()
	close(p.done)

	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}

	st.mu.Lock()
	natural := st.proc == p
	if natural {
		st.proc = nil
		st.gen++
		st.failures = failureCount(st.failures, time.Since(p.startedAt))
	}
	failures := st.failures
	gen := st.gen
	st.mu.Unlock()

	if p.stopped.Load() || !natural {
		metrics.ProcessExits.WithLabelValues(string(p.slot), "stopped").Inc()
		s.logger.Info("process stopped", "slot", p.slot, "pid", p.cmd.Process.Pid, "exit_code", exitCode)
		return
	}

	reason := "exited"
	if exitCode != 0 {
		reason = "failed"
	}
	metrics.ProcessExits.WithLabelValues(string(p.slot), reason).Inc()
	metrics.RunningSlots.WithLabelValues(string(p.slot)).Set(0)
	s.logger.Info("process exited", "slot", p.slot, "pid", p.cmd.Process.Pid, "exit_code", exitCode, "err", err)
	s.streamer(p.slot, p.spec).Info(fmt.Sprintf("%s exited with code %d", p.slot, exitCode))

	if !shouldRestart(p.spec.Restart, exitCode) || s.closing.Load() {
		return
	}

	delay := backoff(failures)
	s.logger.Info("restarting process", "slot", p.slot, "delay", delay, "attempt", failures)
	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
		return
	}

	// a Start or Stop since the exit takes precedence over the restart
	st.mu.Lock()
	overtaken := st.gen != gen
	if !overtaken {
		st.gen++
		gen = st.gen
	}
	st.mu.Unlock()
	if overtaken || s.closing.Load() {
		return
	}
	if _, err := s.launch(s.ctx, st, p.slot, p.spec, gen); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, core.ErrSuperseded) {
		s.logger.Error("restart failed", "slot", p.slot, "err", err)
	}
}

func closeAll(cs ...io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}

// failureCount returns the consecutive failure count after a run lasting ran.
func failureCount(prev int, ran time.Duration) int {
	if ran >= stableRun {
		return 1
	}
	return prev + 1
}

func shouldRestart(policy core.RestartPolicy, exitCode int) bool {
	switch policy {
	case core.RestartAlways:
		return true
	case core.RestartOnFailure:
		return exitCode != 0
	default:
		return false
	}
}

// backoff returns exponential backoff delay: 1s, 2s, 4s, 8s, 16s, 30s max.
func backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > 6 {
		return 30 * time.Second
	}
	d := time.Duration(1<<uint(failures-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
