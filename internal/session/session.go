// Package session implements the Device Session Manager (component J):
// resolving which device a tool call targets, enumerating platforms in
// parallel via errgroup, and driving the current-device state machine,
// grounded on the teacher's session_manager.go device-selection flow.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/installer"
	"github.com/automobile-core/server/internal/probe"
	"github.com/automobile-core/server/internal/registry"
	"github.com/automobile-core/server/internal/wda"
)

// CurrentState is the state of the "current device" slot (§4.10).
type CurrentState string

const (
	StateNone       CurrentState = "none"
	StateBooting    CurrentState = "booting"
	StateVerifying  CurrentState = "verifying"
	StateReady      CurrentState = "ready"
	StateUnresponsive CurrentState = "unresponsive"
)

// Manager ensures a ready device for each call, reusing the current
// device slot across calls where possible.
type Manager struct {
	reg    *registry.Registry
	prober *probe.Prober
	a11y   *installer.Installer
	wda    *wda.Pool

	bootTimeout time.Duration

	mu      sync.Mutex
	current *registry.Device
	state   CurrentState
}

// New constructs a Manager. a11y may be nil when no accessibility
// installer is configured (the accessibility step of the Android
// readiness check is then skipped).
func New(reg *registry.Registry, prober *probe.Prober, a11y *installer.Installer, pool *wda.Pool) *Manager {
	return &Manager{reg: reg, prober: prober, a11y: a11y, wda: pool, bootTimeout: 90 * time.Second}
}

// EnsureDeviceReady implements §4.10's algorithm end to end.
func (m *Manager) EnsureDeviceReady(ctx context.Context, platformPreference string, providedID string) (registry.Device, error) {
	android, ios, err := m.listBothPlatforms(ctx)
	if err != nil {
		return registry.Device{}, err
	}

	if (platformPreference == "" || platformPreference == "either") && len(android) > 0 && len(ios) > 0 && providedID == "" {
		return registry.Device{}, &coreerrors.AmbiguousPlatform{
			Android: deviceIDs(android),
			IOS:     deviceIDs(ios),
		}
	}

	platform := m.resolvePlatform(platformPreference, android, ios)
	pool := android
	if platform == registry.IOS {
		pool = ios
	}

	if providedID != "" {
		d, ok := findByID(pool, providedID)
		if !ok {
			return registry.Device{}, &coreerrors.NotFoundErr{Tool: "device:" + providedID}
		}
		return m.verifyAndPersist(ctx, d)
	}

	if reused, ok := m.reuseCurrent(platform, pool); ok {
		return m.verifyAndPersist(ctx, reused)
	}

	if len(pool) > 0 {
		return m.verifyAndPersist(ctx, pool[0])
	}

	return m.bootFirstImage(ctx, platform)
}

func (m *Manager) listBothPlatforms(ctx context.Context) ([]registry.Device, []registry.Device, error) {
	var android, ios []registry.Device
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		devices, err := m.reg.ListBooted(gctx, registry.Android)
		android = devices
		return err
	})
	g.Go(func() error {
		devices, err := m.reg.ListBooted(gctx, registry.IOS)
		ios = devices
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return android, ios, nil
}

func deviceIDs(devices []registry.Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.ID
	}
	return out
}

func findByID(devices []registry.Device, id string) (registry.Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return registry.Device{}, false
}

// resolvePlatform implements step 3: caller preference wins; "either"
// falls back to whichever side has >= 1 device, preferring Android on a
// tie.
func (m *Manager) resolvePlatform(preference string, android, ios []registry.Device) registry.Platform {
	switch preference {
	case string(registry.Android):
		return registry.Android
	case string(registry.IOS):
		return registry.IOS
	default:
		if len(android) > 0 {
			return registry.Android
		}
		return registry.IOS
	}
}

func (m *Manager) reuseCurrent(platform registry.Platform, pool []registry.Device) (registry.Device, bool) {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil || cur.Platform != platform {
		return registry.Device{}, false
	}
	if _, ok := findByID(pool, cur.ID); !ok {
		return registry.Device{}, false
	}
	return *cur, true
}

// verifyAndPersist implements step 7-8: confirm the device actually
// responds before committing it as current.
func (m *Manager) verifyAndPersist(ctx context.Context, d registry.Device) (registry.Device, error) {
	m.setState(StateVerifying)

	if _, err := m.prober.GetActive(ctx, d); err != nil {
		m.setState(StateUnresponsive)
		m.clearCurrent()
		return registry.Device{}, err
	}

	if d.Platform == registry.Android && m.a11y != nil {
		if _, err := m.a11y.EnsureActive(ctx, d.ID); err != nil {
			m.setState(StateUnresponsive)
			m.clearCurrent()
			return registry.Device{}, err
		}
	}
	if d.Platform == registry.IOS && m.wda != nil {
		host, err := m.wda.Get(ctx, d.ID)
		if err != nil {
			m.setState(StateUnresponsive)
			m.clearCurrent()
			return registry.Device{}, err
		}
		status, err := host.Status(ctx)
		if err != nil || !status.Ready {
			m.setState(StateUnresponsive)
			m.clearCurrent()
			return registry.Device{}, &coreerrors.DeviceNotReady{DeviceID: d.ID, Reason: "WebDriverAgent not ready"}
		}
	}

	m.mu.Lock()
	m.current = &d
	m.state = StateReady
	m.mu.Unlock()
	return d, nil
}

func (m *Manager) bootFirstImage(ctx context.Context, platform registry.Platform) (registry.Device, error) {
	m.setState(StateBooting)
	images, err := m.reg.ListImages(ctx, platform)
	if err != nil {
		return registry.Device{}, err
	}
	if len(images) == 0 {
		return registry.Device{}, &coreerrors.NotFoundErr{Tool: "device image:" + string(platform)}
	}
	image := images[0]
	if err := m.reg.Boot(ctx, image); err != nil {
		return registry.Device{}, err
	}
	booted, err := m.reg.WaitReady(ctx, image, m.bootTimeout)
	if err != nil {
		return registry.Device{}, err
	}
	return m.verifyAndPersist(ctx, booted)
}

func (m *Manager) setState(s CurrentState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) clearCurrent() {
	m.mu.Lock()
	m.current = nil
	m.state = StateNone
	m.mu.Unlock()
}

// Current returns the current device slot's state and device, if any.
func (m *Manager) Current() (registry.Device, CurrentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return registry.Device{}, m.state
	}
	return *m.current, m.state
}
