package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the supervisor's view of the agent.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	// StatusBackoff means the agent exited and a restart is pending.
	StatusBackoff Status = "backoff"
	// StatusFailed means restarts were exhausted.
	StatusFailed Status = "failed"
)

// Defaults applied by New for zero Config fields.
const (
	defaultRestartDelay    = 2 * time.Second
	defaultMaxRestartDelay = 2 * time.Minute
	defaultStableAfter     = time.Minute
	defaultStopTimeout     = 10 * time.Second
)

// ErrAlreadyStarted is returned by Start on a supervisor that is running.
var ErrAlreadyStarted = errors.New("process: already started")

// Config describes the agent and its restart policy.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// Env is appended to the service's own environment.
	Env []string

	// RestartDelay is the first backoff; it doubles up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableAfter is how long a run must last to reset the backoff.
	StableAfter time.Duration

	// MaxRestarts bounds consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// StopTimeout is how long the agent gets after SIGTERM.
	StopTimeout time.Duration

	// OnExit is called from the supervisor goroutine after every exit not
	// caused by Stop.
	OnExit func(err error)
}

// Logger is the subset of logging.Logger the supervisor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one agent process. Safe for concurrent use.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	cmd       *exec.Cmd
	startedAt time.Time
	restarts  int
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(defaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = defaultStableAfter
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}, nil
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the agent and begins supervising it. A failure to launch
// the first run is returned; later failures are retried with backoff.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	cmd, err := s.launch(runCtx)
	if err != nil {
		cancel()
		close(done)
		s.mu.Lock()
		s.done = nil
		s.cancel = nil
		s.status = StatusFailed
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	go s.supervise(runCtx, cmd, done)
	return nil
}

// Stop terminates the agent and waits for the supervisor to finish.
// Calling Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return
	}

	s.logger.Info("stopping agent", "name", s.cfg.Name)
	cancel()
	<-done

	s.mu.Lock()
	s.done = nil
	s.cancel = nil
	s.mu.Unlock()
}

// launch starts one run of the agent in its own process group.
func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stdout = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stderr"}

	// Signal the group so helpers the agent spawned go down with it.
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = s.cfg.StopTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("agent started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// supervise waits on each run and relaunches until ctx ends or restarts
// are exhausted. cmd is nil when the previous launch failed.
func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	delay := s.cfg.RestartDelay
	consecutive := 0

	for {
		var ran time.Duration
		if cmd != nil {
			started := time.Now()
			err := cmd.Wait()
			ran = time.Since(started)

			if ctx.Err() != nil {
				s.setStatus(StatusStopped, nil)
				s.logger.Info("agent stopped", "name", s.cfg.Name)
				return
			}

			if err == nil {
				err = fmt.Errorf("%s exited", s.cfg.Name)
			}
			s.setStatus(StatusBackoff, err)
			s.logger.Warn("agent exited", "name", s.cfg.Name, "error", err, "ran", ran.Round(time.Millisecond))
			if s.cfg.OnExit != nil {
				s.cfg.OnExit(err)
			}
		}

		if ran >= s.cfg.StableAfter {
			delay = s.cfg.RestartDelay
			consecutive = 0
		}
		consecutive++
		if s.cfg.MaxRestarts > 0 && consecutive > s.cfg.MaxRestarts {
			s.setStatus(StatusFailed, nil)
			s.logger.Error("agent restarts exhausted", "name", s.cfg.Name, "restarts", s.cfg.MaxRestarts)
			return
		}

		s.logger.Info("restarting agent", "name", s.cfg.Name, "attempt", consecutive, "delay", delay)
		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped, nil)
			return
		case <-time.After(delay):
		}
		delay = min(2*delay, s.cfg.MaxRestartDelay)

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()

		var err error
		cmd, err = s.launch(ctx)
		if err != nil {
			s.setStatus(StatusBackoff, err)
			s.logger.Error("agent restart failed", "name", s.cfg.Name, "error", err)
			cmd = nil
		}
	}
}

// setStatus records status and, when non-nil, the last error.
func (s *Supervisor) setStatus(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if err != nil {
		s.lastErr = err
	}
	if status != StatusRunning {
		s.cmd = nil
	}
}

// Status returns the current status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats is a snapshot for metrics.
type Stats struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	PID       int     `json:"pid,omitempty"`
	UptimeSec float64 `json:"uptime_seconds,omitempty"`
	Restarts  int     `json:"restarts"`
	LastError string  `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the supervisor.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.cfg.Name, Status: s.status, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.UptimeSec = time.Since(s.startedAt).Seconds()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// lineLogger logs each complete line written to it at debug level.
type lineLogger struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

// maxLine caps a buffered partial line.
const maxLine = 4096

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) > maxLine {
		l.emit(l.buf)
		l.buf = l.buf[:0]
	}
	return len(p), nil
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	l.logger.Debug("agent output", "name", l.name, "stream", l.stream, "line", string(line))
}
