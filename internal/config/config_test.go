package config

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RecordingConfig
		wantErr bool
	}{
		{
			name: "valid explicit topics",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 60,
				LoggedTopics:        []string{"/rosout", "/system_messenger"},
			},
			wantErr: false,
		},
		{
			name: "valid wildcard",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 60,
				LoggedTopics:        []string{"*"},
			},
			wantErr: false,
		},
		{
			name: "empty data folder",
			cfg: RecordingConfig{
				FileDurationSeconds: 60,
				LoggedTopics:        []string{"*"},
			},
			wantErr: true,
		},
		{
			name: "zero duration",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 0,
				LoggedTopics:        []string{"*"},
			},
			wantErr: true,
		},
		{
			name: "negative duration",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: -5,
				LoggedTopics:        []string{"*"},
			},
			wantErr: true,
		},
		{
			name: "empty topic list",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 60,
				LoggedTopics:        []string{},
			},
			wantErr: true,
		},
		{
			name: "wildcard mixed with explicit topics",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 60,
				LoggedTopics:        []string{"*", "/rosout"},
			},
			wantErr: true,
		},
		{
			name: "explicit topics then wildcard",
			cfg: RecordingConfig{
				DataFolder:          "/data",
				FileDurationSeconds: 60,
				LoggedTopics:        []string{"/rosout", "*"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("error %v is not ErrInvalid", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	data := []byte(`{
		"data_folder": "/data",
		"file_duration_seconds": 60,
		"logged_topics": ["/rosout", "/labjack_ain"],
		"control_listen_addr": "localhost:8089"
	}`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.DataFolder != "/data" {
		t.Errorf("data folder = %q, want %q", cfg.DataFolder, "/data")
	}
	if cfg.FileDurationSeconds != 60 {
		t.Errorf("file duration = %d, want 60", cfg.FileDurationSeconds)
	}
	if len(cfg.LoggedTopics) != 2 {
		t.Errorf("logged topics = %v, want 2 entries", cfg.LoggedTopics)
	}
	if cfg.ControlListenAddr != "localhost:8089" {
		t.Errorf("control addr = %q, want %q", cfg.ControlListenAddr, "localhost:8089")
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error for malformed JSON")
	}
}

func TestParse_InvalidConfigSurfaces(t *testing.T) {
	_, err := Parse([]byte(`{"data_folder": "/data", "file_duration_seconds": 60, "logged_topics": []}`))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error %v is not ErrInvalid", err)
	}
}
