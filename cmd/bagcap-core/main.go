package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/daqflow/bagcap/internal/bus"
	"github.com/daqflow/bagcap/internal/capture"
	"github.com/daqflow/bagcap/internal/config"
	"github.com/daqflow/bagcap/internal/control"
	"github.com/daqflow/bagcap/internal/controller"
	"github.com/daqflow/bagcap/internal/diaglog"
	"github.com/daqflow/bagcap/internal/executor"
	"github.com/daqflow/bagcap/internal/ipc"
	"github.com/daqflow/bagcap/internal/pidfile"
	"github.com/daqflow/bagcap/internal/storage"
	"github.com/daqflow/bagcap/internal/topicfilter"
)

const logPrefix = "[bagcap-core]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	// --export-diag subcommand: read log, write bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		logPath := os.Getenv("BAGCAP_LOG_PATH")
		if logPath == "" {
			logPath = "/tmp/bagcap-debug.log"
		}
		diaglog.Version = Version
		path, n, err := diaglog.Export(logPath, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with BAGCAP_DEBUG_CAPTURE=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in bagcap-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting Bagcap Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	outLog.Println("===========================================")

	// Check for duplicate instances
	pidFilePath := pidfile.GetPIDFilePath("bagcap-core")
	outLog.Printf("Checking PID file: %s", pidFilePath)
	pf, err := pidfile.New(pidFilePath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Println("Another instance of bagcap-core may already be running.")
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidFilePath)
		os.Exit(1)
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("PID file created: %s (PID %d)", pidFilePath, os.Getpid())

	// Load recording configuration. A malformed config is a startup failure,
	// not something to limp along with.
	outLog.Println("[STARTUP] Loading recording configuration...")
	cfg, err := config.Load()
	if err != nil {
		errLog.Printf("Failed to load recording config: %v", err)
		if errors.Is(err, config.ErrInvalid) {
			errLog.Println("Fix the configuration and restart the daemon.")
		}
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Loaded config: folder=%s, file_duration=%ds, topics=%v",
		cfg.DataFolder, cfg.FileDurationSeconds, cfg.LoggedTopics)

	// Init diagnostic logging (env-gated NDJSON)
	logPath := os.Getenv("BAGCAP_LOG_PATH")
	if logPath == "" {
		logPath = "/tmp/bagcap-debug.log"
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	// Message plumbing: topic bus feeding capture sessions run on the pool.
	msgBus := bus.New()
	pool := executor.NewPool()
	defer pool.Shutdown()

	begin := func(scope topicfilter.Scope, opts storage.Options) (controller.Session, error) {
		return capture.Begin(capture.Deps{
			Bus:    msgBus,
			Pool:   pool,
			Open:   storage.Open,
			Logger: diagLogger,
		}, scope, opts)
	}

	ctrl := controller.New(cfg, begin, diagLogger)
	ctrl.SetOnTransition(func() {
		if err := writeStatus(ctrl, cfg); err != nil {
			errLog.Printf("Failed to write status: %v", err)
		}
	})
	go ctrl.Run()

	// Create status directory and write initial status
	outLog.Println("[STARTUP] Creating status directory...")
	if err := os.MkdirAll(ipc.CacheDir(), 0755); err != nil {
		errLog.Printf("Failed to create status directory: %v", err)
		os.Exit(1)
	}
	if err := writeStatus(ctrl, cfg); err != nil {
		errLog.Printf("Failed to write initial status: %v", err)
	}

	// Recording starts as soon as the daemon is up. Storage being unavailable
	// is not fatal: the daemon stays idle and a later enable signal retries.
	outLog.Println("[STARTUP] Starting initial capture session...")
	if err := ctrl.Start(); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			errLog.Printf("[STARTUP] Storage unavailable, staying idle: %v", err)
		} else {
			errLog.Printf("[STARTUP] Failed to start capture: %v", err)
			os.Exit(1)
		}
	} else if active := ctrl.ActiveHandle(); active != nil {
		// A queued disable can clear the handle between Start returning
		// and this read.
		outLog.Printf("[STARTUP] Recording to %s", active.OutputURI())
	}

	// Control channel (WebSocket)
	var ctlServer *control.Server
	if cfg.ControlListenAddr != "" {
		outLog.Printf("[STARTUP] Starting control channel on %s...", cfg.ControlListenAddr)
		ctlServer = control.NewServer(ctrl, diagLogger)
		if err := ctlServer.Start(cfg.ControlListenAddr); err != nil {
			errLog.Printf("Failed to start control channel: %v", err)
			os.Exit(1)
		}
		defer func() {
			if err := ctlServer.Shutdown(); err != nil {
				errLog.Printf("Control channel shutdown: %v", err)
			}
		}()
		outLog.Printf("[STARTUP] Control channel listening on %s", ctlServer.Addr())
	} else {
		outLog.Println("[STARTUP] Control channel disabled (no listen address configured)")
	}

	// Command file watcher for bagcap-ctl
	outLog.Println("[STARTUP] Starting command file watcher...")
	quitCh := make(chan struct{}, 1)
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go control.WatchCommands(watchCtx, diagLogger, func(cmd ipc.Command) {
		switch cmd {
		case ipc.CmdStart:
			if err := ctrl.Start(); err != nil {
				errLog.Printf("Start command failed: %v", err)
			}
		case ipc.CmdStop:
			if err := ctrl.Stop(); err != nil {
				errLog.Printf("Stop command failed: %v", err)
			}
		case ipc.CmdReset:
			if err := ctrl.Reset(); err != nil {
				errLog.Printf("Reset command failed: %v", err)
			}
		case ipc.CmdQuit:
			select {
			case quitCh <- struct{}{}:
			default:
			}
		}
	})

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	outLog.Println("[STARTUP] Signal handlers registered (SIGINT, SIGTERM)")
	outLog.Println("===========================================")
	outLog.Println("[RUNNING] Bagcap Core is running")

	select {
	case <-sigChan:
		outLog.Println("===========================================")
		outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))
	case <-quitCh:
		outLog.Println("===========================================")
		outLog.Printf("[SHUTDOWN] Received quit command at %s", time.Now().Format(time.RFC3339))
	}

	if ctrl.State() == controller.StateRecording {
		outLog.Println("[SHUTDOWN] Recording is active - stopping before shutdown...")
	}
	if err := ctrl.Shutdown(); err != nil {
		errLog.Printf("[SHUTDOWN] Controller shutdown: %v", err)
	}
	if err := writeStatus(ctrl, cfg); err != nil {
		errLog.Printf("[SHUTDOWN] Failed to write final status: %v", err)
	}
	outLog.Println("[SHUTDOWN] Bagcap Core stopped")
}

// writeStatus publishes the current controller state for bagcap-ctl.
func writeStatus(ctrl *controller.Controller, cfg *config.RecordingConfig) error {
	status := &ipc.StatusSnapshot{
		State:     string(ctrl.State()),
		LastError: ctrl.LastError(),
		Timestamp: time.Now(),
	}

	scope, err := topicfilter.Resolve(cfg.LoggedTopics)
	if err == nil {
		status.RecordAll = scope.RecordAll
		status.Topics = scope.Topics
	}

	if active := ctrl.ActiveHandle(); active != nil {
		status.SessionID = active.ID()
		status.OutputURI = active.OutputURI()
		status.StartedAt = active.StartedAt()
		status.DurationSeconds = int(time.Since(active.StartedAt()).Seconds())
	}

	return ipc.WriteStatus(status)
}

func initLogging() error {
	logDir := "/tmp"

	// Rotate logs if they exceed 10MB
	outLogPath := filepath.Join(logDir, "bagcap-core.out.log")
	errLogPath := filepath.Join(logDir, "bagcap-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)

	return nil
}

// rotateLogIfNeeded renames the log to .old once it crosses maxSize.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}

	return os.Rename(logPath, oldPath)
}
