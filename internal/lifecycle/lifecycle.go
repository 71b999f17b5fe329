// Package lifecycle implements the App Lifecycle Monitor (component K):
// opportunistic running-set diffing via `pidof`, grounded on the
// teacher's device_monitor.go polling-and-diff goroutine generalised
// into an on-demand check invoked by the Tool Registry rather than a
// free-running timer.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// EventType distinguishes a launch from a termination.
type EventType string

const (
	Launch    EventType = "launch"
	Terminate EventType = "terminate"
)

// Event is one lifecycle transition for a tracked app on a device.
type Event struct {
	DeviceID string
	AppID    string
	Type     EventType
	At       time.Time
}

// Listener is notified of lifecycle events; errors are caught and
// logged by the Monitor, never propagated to the caller of
// checkForChanges (§4.11).
type Listener func(Event)

// Monitor tracks running-state per (device, appId) and emits diffs.
type Monitor struct {
	discover *toolpath.Discovery
	run      *runner.Runner
	onError  func(error)

	mu        sync.Mutex
	tracked   map[string]map[string]bool // deviceID -> appID -> tracked
	running   map[string]map[string]bool // deviceID -> appID -> last known running
	listeners []Listener
}

// New constructs a Monitor. onError receives listener panics/errors for
// logging; may be nil.
func New(discover *toolpath.Discovery, run *runner.Runner, onError func(error)) *Monitor {
	return &Monitor{
		discover: discover,
		run:      run,
		onError:  onError,
		tracked:  make(map[string]map[string]bool),
		running:  make(map[string]map[string]bool),
	}
}

// Track registers appId on device for monitoring.
func (m *Monitor) Track(deviceID, appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracked[deviceID] == nil {
		m.tracked[deviceID] = make(map[string]bool)
	}
	m.tracked[deviceID][appID] = true
}

// Untrack stops monitoring appId on device.
func (m *Monitor) Untrack(deviceID, appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked[deviceID], appID)
	delete(m.running[deviceID], appID)
}

// AddListener registers f to be called for every future lifecycle event.
func (m *Monitor) AddListener(f Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

// CheckForChanges polls `pidof` for every tracked app on device and
// emits launch/terminate events for the diff against the last known
// running set. Emission order is launches first, terminates second
// (§4.11).
func (m *Monitor) CheckForChanges(ctx context.Context, deviceID string) {
	m.mu.Lock()
	apps := make([]string, 0, len(m.tracked[deviceID]))
	for app := range m.tracked[deviceID] {
		apps = append(apps, app)
	}
	prevRunning := m.running[deviceID]
	m.mu.Unlock()

	if len(apps) == 0 {
		return
	}

	current := make(map[string]bool, len(apps))
	for _, app := range apps {
		current[app] = m.isRunning(ctx, deviceID, app)
	}

	var launches, terminates []Event
	now := time.Now()
	for app, isRunning := range current {
		was := prevRunning[app]
		if isRunning && !was {
			launches = append(launches, Event{DeviceID: deviceID, AppID: app, Type: Launch, At: now})
		} else if !isRunning && was {
			terminates = append(terminates, Event{DeviceID: deviceID, AppID: app, Type: Terminate, At: now})
		}
	}

	m.mu.Lock()
	m.running[deviceID] = current
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, ev := range launches {
		m.notify(listeners, ev)
	}
	for _, ev := range terminates {
		m.notify(listeners, ev)
	}
}

func (m *Monitor) notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil && m.onError != nil {
					m.onError(panicToError(r))
				}
			}()
			l(ev)
		}()
	}
}

func panicToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

func (m *Monitor) isRunning(ctx context.Context, deviceID, appID string) bool {
	adb, err := m.discover.Locate(ctx, "adb")
	if err != nil {
		return false
	}
	res, err := m.run.Execute(ctx, runner.Command{
		Path:    adb.Path,
		Args:    []string{"-s", deviceID, "shell", "pidof", appID},
		Timeout: 3 * time.Second,
	})
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(res.Stdout)) > 0
}
