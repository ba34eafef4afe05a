package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Session is the identity the client syncs as. A zero Session is signed out.
type Session struct {
	UserID string `yaml:"user_id,omitempty"`
	Email  string `yaml:"email,omitempty"`
	Token  string `yaml:"token,omitempty"`
	Guest  bool   `yaml:"guest,omitempty"`

	// LastSync is the completion time of the last successful sync.
	LastSync time.Time `yaml:"last_sync,omitempty"`
}

// SignedIn reports whether the session carries an account.
func (s Session) SignedIn() bool {
	return !s.Guest && s.UserID != "" && s.Token != ""
}

// LoadSession reads the session file. A missing file yields a signed-out
// session.
func LoadSession(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to parse session: %w", err)
	}
	return s, nil
}

// SaveSession writes the session file, readable only by the owner.
func SaveSession(path string, s Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// ClearSession removes the session file.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
