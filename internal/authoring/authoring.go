// Package authoring implements the Test Authoring Manager (component M):
// recording a filtered, in-order sequence of successful tool calls into
// a YAML plan and, when a source directory is configured, synchronously
// invoking the Kotlin code generator, grounded on the teacher's
// session_export.go plan-writing flow and workflow_watcher.go's
// auto-stop-on-terminate listener pattern.
package authoring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/automobile-core/server/internal/lifecycle"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/tools"
)

// excludedTools never become plan steps regardless of outcome (§4.13).
// observe is not listed here: Record keeps only the last one.
var excludedTools = map[string]bool{
	"getConfig": true, "config": true, "listDevices": true,
	"setActiveDevice": true, "startDevice": true, "killEmulator": true,
	"listDeviceImages": true, "checkRunningEmulators": true,
	"startAuthoring": true, "stopAuthoring": true,
}

type recordedCall struct {
	tool   string
	params map[string]any
}

// Session is one active recording session.
type Session struct {
	ID          string
	DeviceID    string
	AppID       string
	Description string
	StartedAt   time.Time

	mu    sync.Mutex
	calls []recordedCall
}

// SourceConfig is the per-app source-mapping the Manager consults when
// deciding whether to invoke the Kotlin generator on stop.
type SourceConfig struct {
	AppID     string
	SourceDir string
}

// Manager drives Start/Stop for at most one active Session at a time.
type Manager struct {
	run     *runner.Runner
	sources map[string]SourceConfig
	planDir string

	mu     sync.Mutex
	active *Session
}

// New constructs a Manager. planDir is where finalised YAML plans are
// written.
func New(run *runner.Runner, planDir string, sources []SourceConfig) *Manager {
	m := &Manager{run: run, planDir: planDir, sources: make(map[string]SourceConfig)}
	for _, s := range sources {
		m.sources[s.AppID] = s
	}
	return m
}

// Start begins recording. Fails if a session is already active (§4.13).
func (m *Manager) Start(deviceID, appID, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return "", fmt.Errorf("an authoring session is already active")
	}
	sess := &Session{
		ID:          "session-" + uuid.NewString(),
		DeviceID:    deviceID,
		AppID:       appID,
		Description: description,
		StartedAt:   time.Now(),
	}
	m.active = sess
	return sess.ID, nil
}

// Active returns the currently-recording session, if any.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Record implements tools.Recorder: it appends a successful, non-excluded
// call to the active session's step list in order, collapsing repeated
// `observe` calls down to only the last one (§4.13).
func (m *Manager) Record(tool string, params map[string]any, resp tools.Response) {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil || !resp.Success || excludedTools[tool] {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if tool == "observe" {
		for i := len(sess.calls) - 1; i >= 0; i-- {
			if sess.calls[i].tool == "observe" {
				sess.calls = append(sess.calls[:i], sess.calls[i+1:]...)
				break
			}
		}
	}
	sess.calls = append(sess.calls, recordedCall{tool: tool, params: params})
}

// Stop finalises the active session: writes the YAML plan and, if a
// source directory is mapped for the session's appId, invokes the
// Kotlin generator synchronously. Returns the written plan path.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	sess := m.active
	m.active = nil
	m.mu.Unlock()
	if sess == nil {
		return "", fmt.Errorf("no authoring session is active")
	}
	return m.finalize(ctx, sess)
}

func (m *Manager) finalize(ctx context.Context, sess *Session) (string, error) {
	planPath, err := m.writePlan(sess)
	if err != nil {
		return "", err
	}

	if src, ok := m.sources[sess.AppID]; ok && src.SourceDir != "" {
		if err := m.invokeGenerator(ctx, planPath, src); err != nil {
			return planPath, err
		}
	}
	return planPath, nil
}

func (m *Manager) writePlan(sess *Session) (string, error) {
	sess.mu.Lock()
	steps := make([]map[string]any, 0, len(sess.calls))
	for _, c := range sess.calls {
		step := map[string]any{"tool": c.tool}
		for k, v := range c.params {
			step[k] = v
		}
		steps = append(steps, step)
	}
	sess.mu.Unlock()

	doc := map[string]any{
		"name":        sess.ID,
		"description": sess.Description,
		"generated":   time.Now().UTC().Format(time.RFC3339),
		"appId":       sess.AppID,
		"steps":       steps,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := os.MkdirAll(m.planDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(m.planDir, sess.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write plan: %w", err)
	}
	return path, nil
}

// invokeGenerator runs the Kotlin codegen jar with the plan path and
// options derived from the session's source config (§6).
func (m *Manager) invokeGenerator(ctx context.Context, planPath string, src SourceConfig) error {
	jarPath := os.Getenv("KOTLINPOET_JAR_PATH")
	if jarPath == "" {
		return fmt.Errorf("KOTLINPOET_JAR_PATH not set, skipping code generation")
	}
	_, err := m.run.Execute(ctx, runner.Command{
		Path: "java",
		Args: []string{
			"-jar", jarPath,
			"--plan", planPath,
			"--mode", "json",
			"--output", src.SourceDir,
		},
		Timeout: 60 * time.Second,
	})
	return err
}

// AttachLifecycle wires auto-stop on terminate (§4.13): when the
// lifecycle monitor emits a terminate event for the active session's
// appId, Stop is called automatically.
func (m *Manager) AttachLifecycle(mon *lifecycle.Monitor) {
	mon.AddListener(func(ev lifecycle.Event) {
		if ev.Type != lifecycle.Terminate {
			return
		}
		m.mu.Lock()
		sess := m.active
		m.mu.Unlock()
		if sess == nil || sess.AppID != ev.AppID {
			return
		}
		_, _ = m.Stop(context.Background())
	})
}
