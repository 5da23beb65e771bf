// Package transcript exports finished interviews.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spigell/hh-interviewer/internal/session"
)

// Transcript is the exported form of one interview.
type Transcript struct {
	ExportedAt time.Time        `yaml:"exported_at"`
	Session    session.Snapshot `yaml:"session"`
}

// Marshal renders snap as YAML.
func Marshal(snap session.Snapshot, exportedAt time.Time) ([]byte, error) {
	data, err := yaml.Marshal(Transcript{ExportedAt: exportedAt, Session: snap})
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return data, nil
}

// Write saves snap to path. An empty path creates a file in the temporary directory.
// The written path is returned.
func Write(path string, snap session.Snapshot, exportedAt time.Time) (string, error) {
	data, err := Marshal(snap, exportedAt)
	if err != nil {
		return "", err
	}

	if path == "" {
		f, err := os.CreateTemp("", "interview-"+snap.ID+"-*.yaml")
		if err != nil {
			return "", fmt.Errorf("create transcript file: %w", err)
		}
		defer f.Close()

		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("write transcript: %w", err)
		}
		return f.Name(), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create transcript dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// Read loads a transcript written by Write.
func Read(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var t Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return &t, nil
}
