// Package capture owns one active recording instance: the storage writer,
// the bus subscription for the session's topic scope, and the drain unit
// registered with the executor pool. A Session lives for exactly one
// Begin/End cycle and is never reused; every restart constructs a fresh
// Session with a freshly derived output path.
package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/daqflow/bagcap/internal/bus"
	"github.com/daqflow/bagcap/internal/diaglog"
	"github.com/daqflow/bagcap/internal/executor"
	"github.com/daqflow/bagcap/internal/storage"
	"github.com/daqflow/bagcap/internal/topicfilter"
)

// Deps are the collaborators a Session records through.
type Deps struct {
	Bus    *bus.Bus
	Pool   *executor.Pool
	Open   storage.OpenFunc
	Logger *diaglog.Logger
}

// Session is the handle for one active capture. Single-caller discipline:
// the session controller serializes Begin and End; the Session does not
// re-check its own lifecycle flags.
type Session struct {
	id        string
	scope     topicfilter.Scope
	opts      storage.Options
	writer    storage.Writer
	sub       *bus.Subscription
	pool      *executor.Pool
	logger    *diaglog.Logger
	unitName  string
	startedAt time.Time
}

// Begin allocates the writer, subscribes to the session's topic scope, and
// registers the drain unit with the pool. On any failure all partially
// acquired resources are released and no Session is returned.
func Begin(deps Deps, scope topicfilter.Scope, opts storage.Options) (*Session, error) {
	writer, err := deps.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("begin capture: %w", err)
	}

	s := &Session{
		id:        filepath.Base(opts.OutputURI),
		scope:     scope,
		opts:      opts,
		writer:    writer,
		pool:      deps.Pool,
		logger:    deps.Logger,
		startedAt: time.Now(),
	}
	s.unitName = "capture/" + s.id

	s.sub = deps.Bus.Subscribe(scope.RecordAll, scope.Topics)
	if err := deps.Pool.Add(s.unitName, executor.UnitFunc(s.drain)); err != nil {
		s.sub.Cancel()
		_ = writer.Close()
		return nil, fmt.Errorf("begin capture: %w", err)
	}

	s.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCaptureSession,
		Event:     diaglog.EventCaptureBegin,
		SessionID: s.id,
		Payload: map[string]interface{}{
			"output_uri": opts.OutputURI,
			"record_all": scope.RecordAll,
			"topics":     scope.Topics,
		},
	})
	return s, nil
}

// End unregisters the drain unit, cancels the subscription, and closes the
// writer. The writer close error is returned; a dangling registration is
// worse than a lossy final flush, so unregistration always happens first.
func (s *Session) End() error {
	_ = s.pool.Remove(s.unitName)
	s.sub.Cancel()

	stoppedAt := time.Now()
	closeErr := s.writer.Close()

	if err := s.writeMetadata(stoppedAt); err != nil {
		s.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCaptureSession,
			Event:     diaglog.EventCaptureEndFailed,
			SessionID: s.id,
			Reason:    "metadata",
			Payload:   map[string]interface{}{"error": err.Error()},
		})
	}

	s.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCaptureSession,
		Event:     diaglog.EventCaptureEnd,
		SessionID: s.id,
		Payload:   map[string]interface{}{"duration": stoppedAt.Sub(s.startedAt).String()},
	})

	if closeErr != nil {
		return fmt.Errorf("end capture: %w", closeErr)
	}
	return nil
}

// ID returns the session identifier (the bag directory name).
func (s *Session) ID() string {
	return s.id
}

// OutputURI returns the session's bag directory.
func (s *Session) OutputURI() string {
	return s.opts.OutputURI
}

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Scope returns the resolved topic scope for this session.
func (s *Session) Scope() topicfilter.Scope {
	return s.scope
}

// drain pumps subscribed messages into the writer until the unit is
// cancelled. A write failure terminates the drain; the failure is logged and
// the controller observes it when End closes the writer.
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.flushPending()
			return
		case msg, ok := <-s.sub.C:
			if !ok {
				return
			}
			if err := s.writer.WriteMessage(msg); err != nil {
				s.logger.Log(diaglog.LogEntry{
					Component: diaglog.ComponentBagWriter,
					Event:     diaglog.EventWriteError,
					SessionID: s.id,
					Payload:   map[string]interface{}{"topic": msg.Topic, "error": err.Error()},
				})
				return
			}
		}
	}
}

// flushPending writes whatever is already buffered on the subscription so a
// stop does not discard messages that arrived before it.
func (s *Session) flushPending() {
	for {
		select {
		case msg, ok := <-s.sub.C:
			if !ok {
				return
			}
			if err := s.writer.WriteMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
