package control

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daqflow/bagcap/internal/diaglog"
	"github.com/daqflow/bagcap/internal/ipc"
)

// CommandHandler is invoked for each command read from the command file.
type CommandHandler func(cmd ipc.Command)

// WatchCommands monitors the command file for control commands until ctx is
// cancelled. It prefers fsnotify and degrades to pure polling when the
// watcher cannot be created or attached.
func WatchCommands(ctx context.Context, logger *diaglog.Logger, handle CommandHandler) {
	cmdPath := ipc.CommandPath()
	cmdDir := filepath.Dir(cmdPath)

	// The directory must exist before fsnotify can watch it.
	if err := os.MkdirAll(cmdDir, 0755); err != nil {
		log.Printf("Failed to create command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(ctx, cmdPath, logger, handle)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify not available, falling back to polling: %v", err)
		watchCommandsWithPolling(ctx, cmdPath, logger, handle)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(cmdDir); err != nil {
		log.Printf("Failed to watch command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(ctx, cmdPath, logger, handle)
		return
	}

	log.Println("Command watcher started (using fsnotify)")

	// Fallback polling ticker in case fsnotify misses events
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				log.Println("fsnotify watcher closed, switching to polling")
				watchCommandsWithPolling(ctx, cmdPath, logger, handle)
				return
			}

			if event.Name == cmdPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure write is complete
				time.Sleep(50 * time.Millisecond)

				cmd, err := ipc.ReadCommand()
				if err != nil || cmd == "" {
					continue
				}

				dispatch(cmd, logger, handle)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			if fileInfo, err := os.Stat(cmdPath); err == nil {
				if fileInfo.ModTime().After(lastCheckTime) {
					time.Sleep(50 * time.Millisecond)

					cmd, err := ipc.ReadCommand()
					if err == nil && cmd != "" {
						dispatch(cmd, logger, handle)
						lastCheckTime = time.Now()
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				log.Println("fsnotify error channel closed, switching to polling")
				watchCommandsWithPolling(ctx, cmdPath, logger, handle)
				return
			}
			log.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling-based fallback for command
// monitoring.
func watchCommandsWithPolling(ctx context.Context, cmdPath string, logger *diaglog.Logger, handle CommandHandler) {
	log.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fileInfo, err := os.Stat(cmdPath)
		if err != nil {
			continue // File doesn't exist yet, keep polling
		}

		if fileInfo.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond)

			cmd, err := ipc.ReadCommand()
			if err == nil && cmd != "" {
				dispatch(cmd, logger, handle)
			}
			lastCheckTime = time.Now()
		}
	}
}

func dispatch(cmd ipc.Command, logger *diaglog.Logger, handle CommandHandler) {
	log.Printf("Received command: %s", cmd)
	logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCommandWatcher,
		Event:     diaglog.EventCommandReceived,
		Payload:   map[string]interface{}{"command": string(cmd)},
	})
	handle(cmd)
}
