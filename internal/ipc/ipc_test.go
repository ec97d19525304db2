package ipc

import (
	"testing"
	"time"
)

func TestWriteReadCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := WriteCommand(CmdReset); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != CmdReset {
		t.Errorf("command = %q, want %q", cmd, CmdReset)
	}

	// Read-and-clear: a second read returns nothing.
	cmd, err = ReadCommand()
	if err != nil {
		t.Fatalf("second ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("command after clear = %q, want empty", cmd)
	}
}

func TestReadCommand_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("command = %q, want empty", cmd)
	}
}

func TestReadCommand_IgnoresUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := WriteCommand(Command("explode")); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("unknown command not ignored, got %q", cmd)
	}
}

func TestWriteReadStatus(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	status := &StatusSnapshot{
		State:     "recording",
		SessionID: "Bag_2024_10_02_03_04_05",
		OutputURI: "/data/Bag_2024_10_02_03_04_05",
		RecordAll: true,
		Timestamp: time.Now(),
	}
	if err := WriteStatus(status); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}

	got, err := ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if got.State != "recording" {
		t.Errorf("state = %q", got.State)
	}
	if got.SessionID != status.SessionID {
		t.Errorf("session_id = %q", got.SessionID)
	}
	if !got.RecordAll {
		t.Error("record_all not round-tripped")
	}
}

func TestReadStatus_Missing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := ReadStatus(); err == nil {
		t.Fatal("expected error reading missing status")
	}
}
