// Package config implements the Configuration Store (component O): JSON
// persistence at $HOME/.auto-mobile/config.json, live reload via
// fsnotify, and environment-variable overlay via viper, grounded on the
// teacher's workflow_watcher.go fsnotify debounce pattern.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DeviceConfig is one device's persisted session configuration (§6).
type DeviceConfig struct {
	Platform   string                `json:"platform"`
	ActiveMode string                `json:"activeMode"`
	DeviceID   string                `json:"deviceId"`

	TestAuthoring *TestAuthoringConfig `json:"testAuthoring,omitempty"`
	Exploration   *ExplorationConfig   `json:"exploration,omitempty"`
}

// TestAuthoringConfig is a device's "testAuthoring" active-mode payload.
type TestAuthoringConfig struct {
	AppID   string `json:"appId"`
	Persist bool   `json:"persist"`
}

// ExplorationConfig is a device's "exploration" active-mode payload.
type ExplorationConfig struct {
	DeepLinkSkipping bool `json:"deepLinkSkipping"`
}

// AppConfig maps an appId to its source directory and platform.
type AppConfig struct {
	AppID     string            `json:"appId"`
	SourceDir string            `json:"sourceDir"`
	Platform  string            `json:"platform"`
	Data      map[string]string `json:"data,omitempty"`
}

// Document is the full persisted configuration file shape (§6).
type Document struct {
	Devices []DeviceConfig `json:"devices"`
	Apps    []AppConfig    `json:"apps"`
}

// Store loads, persists and watches the configuration document,
// debouncing external fsnotify edits the way the teacher's workflow
// watcher debounces directory events.
type Store struct {
	path   string
	viper  *viper.Viper
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	doc     Document
	onChange func(Document)
	stopCh  chan struct{}
}

// DefaultPath returns $HOME/.auto-mobile/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".auto-mobile", "config.json")
}

// New loads the configuration at path (creating an empty document if
// the file does not yet exist) and binds environment-variable overrides
// via viper under the AUTOMOBILE_ prefix.
func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, viper: viper.New(), stopCh: make(chan struct{})}
	s.viper.SetEnvPrefix("AUTOMOBILE")
	s.viper.AutomaticEnv()

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.doc = Document{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration document.
func (s *Store) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Save persists doc to disk as indented JSON.
func (s *Store) Save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// OnChange registers a callback invoked whenever Watch detects and
// reloads an externally-edited config file.
func (s *Store) OnChange(f func(Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = f
}

// Watch starts an fsnotify watch on the config file's directory,
// debouncing bursts of writes before reloading, the same 300ms debounce
// shape the teacher's workflow watcher uses.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	const debounceDelay = 300 * time.Millisecond
	var timer *time.Timer
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, s.reloadAndNotify)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) reloadAndNotify() {
	if err := s.load(); err != nil {
		return
	}
	s.mu.RLock()
	cb := s.onChange
	doc := s.doc
	s.mu.RUnlock()
	if cb != nil {
		cb(doc)
	}
}

// Stop ends the fsnotify watch, if one is running.
func (s *Store) Stop() {
	if s.watcher != nil {
		close(s.stopCh)
		s.watcher.Close()
		s.watcher = nil
	}
}

// EnvString returns an environment-overridable string value, falling
// back to def when unset. Used for ANDROID_HOME-style overrides that
// sit alongside the JSON document (§6).
func (s *Store) EnvString(key, def string) string {
	if v := s.viper.GetString(key); v != "" {
		return v
	}
	return def
}
