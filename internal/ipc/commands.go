package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents control commands from bagcap-ctl to the daemon.
type Command string

const (
	CmdStart Command = "start" // Start recording immediately
	CmdStop  Command = "stop"  // Stop recording immediately
	CmdReset Command = "reset" // Atomically restart the active session
	CmdQuit  Command = "quit"  // Shutdown daemon
)

// CacheDir returns the bagcap cache directory.
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "bagcap")
}

// CommandPath returns the command file watched by the daemon.
func CommandPath() string {
	return filepath.Join(CacheDir(), "cmd.txt")
}

// WriteCommand writes a command to the command file.
func WriteCommand(cmd Command) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the command file.
// Returns empty string if no command or file doesn't exist.
func ReadCommand() (Command, error) {
	data, err := os.ReadFile(CommandPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No command pending
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(CommandPath(), []byte(""), 0644); err != nil {
		return "", err
	}

	cmd := Command(strings.TrimSpace(string(data)))

	switch cmd {
	case CmdStart, CmdStop, CmdReset, CmdQuit:
		return cmd, nil
	case "":
		return "", nil // Empty file
	default:
		// Invalid command - ignore it
		return "", nil
	}
}
