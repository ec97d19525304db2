// bagcap-ctl is the command-line control tool for the bagcap-core daemon.
// Commands are delivered through the watched command file; status is read
// from the daemon's published status snapshot.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/daqflow/bagcap/internal/ipc"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "start":
		sendCommand(ipc.CmdStart)
	case "stop":
		sendCommand(ipc.CmdStop)
	case "reset":
		sendCommand(ipc.CmdReset)
	case "quit":
		sendCommand(ipc.CmdQuit)
	case "status":
		printStatus()
	case "version", "--version":
		fmt.Println("bagcap-ctl " + Version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func sendCommand(cmd ipc.Command) {
	if err := ipc.WriteCommand(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to send %s command: %v\n", cmd, err)
		os.Exit(1)
	}
	fmt.Printf("Sent %s command to bagcap-core\n", cmd)
}

func printStatus() {
	status, err := ipc.ReadStatus()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("bagcap-core is not running (no status file)")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: failed to read status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("State:     %s\n", status.State)
	if status.SessionID != "" {
		fmt.Printf("Session:   %s\n", status.SessionID)
		fmt.Printf("Output:    %s\n", status.OutputURI)
		fmt.Printf("Started:   %s\n", status.StartedAt.Format(time.RFC3339))
		fmt.Printf("Duration:  %ds\n", status.DurationSeconds)
	}
	if status.RecordAll {
		fmt.Println("Topics:    * (all)")
	} else if len(status.Topics) > 0 {
		fmt.Printf("Topics:    %v\n", status.Topics)
	}
	if status.LastError != "" {
		fmt.Printf("LastError: %s\n", status.LastError)
	}
	fmt.Printf("Updated:   %s\n", status.Timestamp.Format(time.RFC3339))
}

func usage() {
	fmt.Println(`bagcap-ctl - control the bagcap-core capture daemon

Usage:
  bagcap-ctl <command>

Commands:
  start    Begin a capture session
  stop     End the active capture session
  reset    Atomically restart the active session into a new bag
  status   Show daemon state and active session
  quit     Shut the daemon down
  version  Print version`)
}
