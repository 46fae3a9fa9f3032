package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"edgedetect/core"
	"edgedetect/logging"
)

// Manager ties signals, in-flight band workers and cleanup together.
//
// The first SIGINT or SIGTERM cancels Context(); the launcher then
// refuses new band workers and the driver skips images that have not
// started. A second signal calls the force-exit function with the
// conventional 128+n exit code.
//
// Usage:
//
//	m := shutdown.NewManager(logger)
//	m.Start()
//	defer m.Shutdown()
//	engine, _ := filter.NewEngine(cfg.Threads, filter.WithLauncher(m.Tracker()))
//	report, err := driver.Run(m.Context(), inputs)
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration
	exit    func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter

	sigChan chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds how long Shutdown waits for running workers.
// Default is 10 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExitFunc replaces os.Exit for the forced exit on a second signal.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		if exit != nil {
			m.exit = exit
		}
	}
}

// NewManager creates a Manager. Call Start to begin listening for signals.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  10 * time.Second,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func(sig os.Signal) {
		m.logger.Warn("Received second signal, forcing exit", zap.String("signal", sig.String()))
		_ = m.logger.Sync()
		m.exit(core.ExitCodeForSignal(sig))
	})
	return m
}

// Context is cancelled by the first signal or by Shutdown.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Tracker returns the launcher that band workers are started through.
func (m *Manager) Tracker() *OperationTracker {
	return m.tracker
}

// Register adds a cleanup function run by Shutdown, lowest priority first.
func (m *Manager) Register(name string, priority int, fn CleanupFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered cleanup", zap.String("name", name), zap.Int("priority", priority))
}

// Start begins listening for SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go m.loop()
}

func (m *Manager) loop() {
	for sig := range m.sigChan {
		m.handle(sig)
	}
}

// handle processes one signal. It is separate from loop so tests can
// deliver signals without the OS.
func (m *Manager) handle(sig os.Signal) {
	if m.signals.Increment(sig) == 1 {
		m.logger.Warn("Received shutdown signal, finishing running workers",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Interrupted reports whether a signal was received.
func (m *Manager) Interrupted() bool {
	return m.signals.Count() > 0
}

// Shutdown closes the tracker, waits for running workers up to the
// timeout and runs the cleanup functions. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	defer m.cancel()

	if m.Interrupted() {
		m.logger.Info("Shutting down after signal", zap.String("signal", m.signals.Last().String()))
	}

	begin := time.Now()
	m.tracker.Close()
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("Timeout waiting for band workers",
			zap.Duration("waited", time.Since(begin)),
			zap.Int64("remaining", m.tracker.ActiveCount()),
		)
	}

	remaining := m.timeout - time.Since(begin)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	if err := m.registry.Run(ctx); err != nil {
		m.logger.Error("Cleanup failed", zap.Error(err))
		return err
	}
	m.logger.Debug("Shutdown complete",
		zap.Duration("duration", time.Since(begin)),
		zap.Int64("band_workers", m.tracker.TotalStarted()),
	)
	return nil
}
