// Package controller implements the recording session state machine. It is
// the single owner of the idle/recording transition: control signals from
// every source are funnelled through one bounded queue and one mutex, so at
// most one capture session exists at any time and begin/end pairs never
// race.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daqflow/bagcap/internal/bagpath"
	"github.com/daqflow/bagcap/internal/config"
	"github.com/daqflow/bagcap/internal/diaglog"
	"github.com/daqflow/bagcap/internal/storage"
	"github.com/daqflow/bagcap/internal/topicfilter"
)

// ErrDoubleTransition marks an internal invariant violation: a begin while
// already recording or an end while idle. Unreachable when transitions go
// through the controller; guarded against rather than silently ignored.
var ErrDoubleTransition = errors.New("double transition")

// State is the controller's recording state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// signalQueue bounds pending control signals. Sends block when full so
// arrival order is preserved rather than dropping.
const signalQueue = 16

// Session is the handle for one active capture, as the controller sees it.
type Session interface {
	End() error
	ID() string
	OutputURI() string
	StartedAt() time.Time
}

// BeginFunc constructs a new capture session. capture.Begin, partially
// applied with its collaborators, satisfies it; tests substitute fakes.
type BeginFunc func(scope topicfilter.Scope, opts storage.Options) (Session, error)

// Controller is the recording session state machine.
type Controller struct {
	cfg    *config.RecordingConfig
	begin  BeginFunc
	namer  *bagpath.Namer
	logger *diaglog.Logger

	mu        sync.Mutex
	state     State
	active    Session
	lastError string

	signals chan bool
	done    chan struct{}
	quit    chan struct{}
	once    sync.Once

	// onTransition, when set, runs after every committed state change,
	// outside the state mutex. Set before Run.
	onTransition func()
}

// New creates a Controller in the idle state. The daemon performs its
// mandatory Start immediately after wiring; capture never waits for an
// external signal to begin.
func New(cfg *config.RecordingConfig, begin BeginFunc, logger *diaglog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		begin:   begin,
		namer:   &bagpath.Namer{},
		logger:  logger,
		state:   StateIdle,
		signals: make(chan bool, signalQueue),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// SetOnTransition registers a hook invoked after each committed transition
// (status snapshot updates). Must be called before Run.
func (c *Controller) SetOnTransition(fn func()) {
	c.onTransition = fn
}

// Start transitions idle -> recording: resolve the topic scope, derive a
// fresh output path, and begin a new capture session. Already recording is
// a no-op. On begin failure the controller stays idle and the error is
// returned to the caller.
func (c *Controller) Start() error {
	c.mu.Lock()
	err := c.startLocked()
	c.mu.Unlock()
	c.notify()
	return err
}

// Stop transitions recording -> idle, ending the active session. Already
// idle is a no-op. An end failure is returned, but the controller still
// commits the idle state: a dangling writer registration is worse than a
// lossy final flush.
func (c *Controller) Stop() error {
	c.mu.Lock()
	err := c.stopLocked()
	c.mu.Unlock()
	c.notify()
	return err
}

// Reset atomically restarts recording: stop-then-start under one critical
// section, so no queued control signal can observe the idle gap. Provided
// for programmatic rotation; not yet wired to a timer.
func (c *Controller) Reset() error {
	c.mu.Lock()
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventCaptureReset,
	})
	stopErr := c.stopLocked()
	startErr := c.startLocked()
	c.mu.Unlock()
	c.notify()

	if startErr != nil {
		return startErr
	}
	return stopErr
}

// Signal enqueues an enable/disable control signal. Signals are applied in
// arrival order by the Run loop; a signal requesting the currently held
// state is a no-op when applied.
func (c *Controller) Signal(enable bool) {
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventSignalReceived,
		Payload:   map[string]interface{}{"enable_recording": enable},
	})
	select {
	case c.signals <- enable:
	case <-c.quit:
	}
}

// Run consumes queued control signals until Shutdown. It is the single
// consumer: every signal-driven transition is serialized here.
func (c *Controller) Run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case enable := <-c.signals:
			if enable {
				_ = c.Start()
			} else {
				_ = c.Stop()
			}
		}
	}
}

// Shutdown stops the signal loop and ends any active session.
func (c *Controller) Shutdown() error {
	c.once.Do(func() { close(c.quit) })
	<-c.done
	return c.Stop()
}

// State returns the current recording state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveHandle returns the active session, or nil when idle. Diagnostics
// only; the controller remains the sole owner of the session lifecycle.
func (c *Controller) ActiveHandle() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastError returns the most recent begin/end failure message, if any.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Controller) startLocked() error {
	if c.state == StateRecording {
		return nil
	}
	if c.active != nil {
		// Invariant: idle state never holds a session.
		return fmt.Errorf("%w: begin with live session", ErrDoubleTransition)
	}

	scope, err := topicfilter.Resolve(c.cfg.LoggedTopics)
	if err != nil {
		c.lastError = err.Error()
		return err
	}

	opts := storage.Options{
		OutputURI:    c.namer.Next(c.cfg.DataFolder, time.Now()),
		MaxDuration:  time.Duration(c.cfg.FileDurationSeconds) * time.Second,
		MaxFileBytes: 0, // only time-based rotation
		CacheBytes:   storage.DefaultCacheBytes,
		Format:       storage.FormatCBORZstd,
		SnapshotMode: false,
	}

	sess, err := c.begin(scope, opts)
	if err != nil {
		c.lastError = err.Error()
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventCaptureBeginFailed,
			Payload:   map[string]interface{}{"output_uri": opts.OutputURI, "error": err.Error()},
		})
		return err
	}

	c.active = sess
	c.state = StateRecording
	c.lastError = ""
	return nil
}

func (c *Controller) stopLocked() error {
	if c.state == StateIdle {
		return nil
	}
	if c.active == nil {
		return fmt.Errorf("%w: end without live session", ErrDoubleTransition)
	}

	err := c.active.End()
	c.active = nil
	c.state = StateIdle
	if err != nil {
		c.lastError = err.Error()
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventCaptureEndFailed,
			Payload:   map[string]interface{}{"error": err.Error()},
		})
	}
	return err
}

func (c *Controller) notify() {
	if c.onTransition != nil {
		c.onTransition()
	}
}
