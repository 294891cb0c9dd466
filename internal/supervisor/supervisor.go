// Package supervisor owns the single capture process: it starts it, relays
// the operator's continue signal, cancels it, and reports its lifecycle as
// observable state. When the process exits the supervisor records the
// outcome, identifies the credential file produced and asks the reload sink
// to pick it up.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/credstore"
)

// ReloadSink re-reads the credential store after a capture completes.
type ReloadSink interface {
	ReloadAuthSources() error
}

// ReloadFunc adapts a function to ReloadSink.
type ReloadFunc func() error

// ReloadAuthSources calls f.
func (f ReloadFunc) ReloadAuthSources() error { return f() }

// CommandFunc returns the executable and arguments of the capture process.
type CommandFunc func(mode capture.Mode, targetIndex int) (name string, args []string)

// Config configures a Supervisor.
type Config struct {
	Store *credstore.Store
	Sink  ReloadSink

	// Command defaults to re-executing the running binary with the
	// capture subcommand.
	Command CommandFunc

	// Dir is the capture process working directory.
	Dir string

	// Lang is the language hint passed to the capture process.
	Lang string

	// Env is the environment the capture process inherits before the
	// capture variables are applied. Defaults to os.Environ().
	Env []string

	// LockFile, when set, is held for the lifetime of a capture so that
	// supervisors in other processes sharing the store cannot start one.
	LockFile string
}

// process is the live capture process and everything owned with it.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lock  *flock.Flock
}

// Supervisor runs at most one capture process at a time.
type Supervisor struct {
	cfg    Config
	logger func(format string, args ...interface{})

	mu        sync.Mutex
	phase     Phase
	state     Status
	proc      *process
	observers []Observer
}

// New creates a supervisor.
func New(cfg Config, logger func(format string, args ...interface{})) *Supervisor {
	if cfg.Command == nil {
		cfg.Command = selfCommand
	}
	if cfg.Lang == "" {
		cfg.Lang = capture.DefaultLang
	}
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	s := &Supervisor{cfg: cfg, logger: logger}
	s.state = Status{Phase: PhaseIdle, Mode: capture.ModeCreate}
	s.phase = PhaseIdle
	return s
}

// selfCommand re-executes the current binary as the capture process.
func selfCommand(mode capture.Mode, targetIndex int) (string, []string) {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return exe, capture.Args(mode, targetIndex)
}

// Observe registers an observer for lifecycle events.
func (s *Supervisor) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// transition is the single mutation point for the phase.
// Caller must hold s.mu.
func (s *Supervisor) transition(to Phase) {
	if !canTransition(s.phase, to) {
		s.logger("supervisor: unexpected transition %s -> %s", s.phase, to)
	}
	s.phase = to
	s.state.Phase = to
}

func (s *Supervisor) notify(typ EventType, st Status) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	ev := Event{Type: typ, Status: st}
	for _, o := range observers {
		o(ev)
	}
}

// Start launches a capture process. targetIndex is required for relogin
// and ignored for create.
func (s *Supervisor) Start(mode capture.Mode, targetIndex *int) Result {
	s.mu.Lock()

	if s.proc != nil {
		s.mu.Unlock()
		return fail(http.StatusConflict, MsgAlreadyRunning, nil)
	}

	var target *int
	if mode == capture.ModeRelogin {
		if targetIndex == nil || *targetIndex < 0 {
			s.mu.Unlock()
			return fail(http.StatusBadRequest, MsgInvalidIndex, nil)
		}
		target = cloneInt(targetIndex)
	} else {
		mode = capture.ModeCreate
	}

	var fileLock *flock.Flock
	if s.cfg.LockFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.LockFile), 0755); err != nil {
			s.mu.Unlock()
			return startFailedResult(mode, fmt.Errorf("creating lock directory: %w", err))
		}
		fileLock = flock.New(s.cfg.LockFile)
		locked, err := fileLock.TryLock()
		if err != nil {
			s.mu.Unlock()
			return startFailedResult(mode, fmt.Errorf("acquiring capture lock: %w", err))
		}
		if !locked {
			s.mu.Unlock()
			return fail(http.StatusConflict, MsgAlreadyRunning, errors.New("capture lock held by another process"))
		}
	}

	s.state = Status{
		Phase:       s.phase,
		RunID:       uuid.NewString(),
		Mode:        mode,
		TargetIndex: target,
	}
	s.transition(PhaseStarting)

	index := 0
	if target != nil {
		index = *target
	}
	name, args := s.cfg.Command(mode, index)
	cmd := exec.Command(name, args...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = s.captureEnv(mode, target)

	p, stdout, stderr, err := startProcess(cmd)
	if err != nil {
		if fileLock != nil {
			_ = fileLock.Unlock()
		}
		msg := err.Error()
		s.state.Error = &msg
		s.state.Running = false
		s.transition(PhaseError)
		s.transition(PhaseIdle)
		st := s.state.clone()
		s.mu.Unlock()

		s.logger("capture: start failed: %v", err)
		s.notify(EventStartFailed, st)
		return startFailedResult(mode, err)
	}
	p.lock = fileLock

	now := time.Now()
	pid := cmd.Process.Pid
	s.proc = p
	s.state.Running = true
	s.state.PID = &pid
	s.state.StartedAt = &now
	s.transition(PhaseRunning)
	st := s.state.clone()

	var drains sync.WaitGroup
	drains.Add(2)
	go s.drain(&drains, stdout, pid, "")
	go s.drain(&drains, stderr, pid, "stderr: ")
	go s.watch(p, &drains)
	s.mu.Unlock()

	s.logger("capture: started %s run %s (pid %d)", mode, st.RunID, pid)
	s.notify(EventStarted, st)
	return startedResult(mode)
}

func startProcess(cmd *exec.Cmd) (*process, io.Reader, io.Reader, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return &process{cmd: cmd, stdin: stdin}, stdout, stderr, nil
}

// drain forwards one output stream to the log line by line.
func (s *Supervisor) drain(wg *sync.WaitGroup, r io.Reader, pid int, prefix string) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.logger("capture[%d]: %s%s", pid, prefix, line)
	}
	if err := scanner.Err(); err != nil {
		s.logger("capture[%d]: %sread error: %v", pid, prefix, err)
		// Keep the pipe empty so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
}

// watch waits for the process to exit once its output is fully drained.
func (s *Supervisor) watch(p *process, drains *sync.WaitGroup) {
	drains.Wait()
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.logger("capture[%d]: wait: %v", p.cmd.Process.Pid, err)
	}
	s.handleExit(p, code)
}

// handleExit records the outcome, identifies the credential file and
// notifies the reload sink. The process handle is released last, so a new
// start is refused until the reload finished.
func (s *Supervisor) handleExit(p *process, code int) {
	s.mu.Lock()
	now := time.Now()
	s.state.Running = false
	s.state.ExitCode = &code
	s.state.FinishedAt = &now
	if code != 0 {
		msg := fmt.Sprintf("capture exited with code %d", code)
		s.state.Error = &msg
		s.transition(PhaseError)
	}
	s.transition(PhaseClosing)

	if s.state.Mode == capture.ModeRelogin && s.state.TargetIndex != nil {
		file := credstore.Filename(*s.state.TargetIndex)
		s.state.LastAuthFile = &file
		s.state.LastAuthIndex = cloneInt(s.state.TargetIndex)
	} else if s.cfg.Store != nil {
		if latest, found := s.cfg.Store.Latest(); found {
			s.state.LastAuthFile = &latest.File
			s.state.LastAuthIndex = &latest.Index
		}
	}
	s.mu.Unlock()

	s.reload()
	s.logger("capture: completed with code %d", code)

	s.mu.Lock()
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
	s.proc = nil
	s.transition(PhaseIdle)
	st := s.state.clone()
	s.mu.Unlock()

	s.notify(EventExited, st)
}

// reload notifies the sink. Failures are logged and never propagate.
func (s *Supervisor) reload() {
	if s.cfg.Sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger("capture: reload auth sources panicked: %v", r)
		}
	}()
	if err := s.cfg.Sink.ReloadAuthSources(); err != nil {
		s.logger("capture: failed to reload auth sources: %v", err)
	}
}

// Continue writes the continuation signal to the capture process.
func (s *Supervisor) Continue() Result {
	s.mu.Lock()
	if s.proc == nil || !s.state.Running {
		s.mu.Unlock()
		return fail(http.StatusConflict, MsgNotRunning, nil)
	}
	if _, err := io.WriteString(s.proc.stdin, "\n"); err != nil {
		s.mu.Unlock()
		return fail(http.StatusInternalServerError, MsgContinueFailed, err)
	}
	first := !s.state.ContinueSent
	s.state.ContinueSent = true
	st := s.state.clone()
	s.mu.Unlock()

	if first {
		s.notify(EventContinueSent, st)
	}
	return ok(MsgContinueSent)
}

// Cancel requests termination of the capture process. It does not wait;
// exit handling runs when the process is gone.
func (s *Supervisor) Cancel() Result {
	s.mu.Lock()
	if s.proc == nil || !s.state.Running {
		s.mu.Unlock()
		return fail(http.StatusConflict, MsgNotRunning, nil)
	}
	pid := s.proc.cmd.Process.Pid
	if err := terminate(s.proc.cmd.Process); err != nil {
		s.mu.Unlock()
		return fail(http.StatusInternalServerError, MsgCancelFailed, err)
	}
	st := s.state.clone()
	s.mu.Unlock()

	s.logger("capture: termination requested (pid %d)", pid)
	s.notify(EventCancelSent, st)
	return ok(MsgCancelSuccess)
}

// Status returns a snapshot of the capture state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}
