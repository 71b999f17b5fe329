// Package app wires every internal component into one process: the
// Command Runner, Tool-Location Discovery, Device Registry, Device
// Session Manager, Command Execution Layer, Observation Cache, View
// Hierarchy dumpers, Accessibility/Keyboard Installers, App Lifecycle
// Monitor, Test Authoring Manager, Plan Executor, Tool Registry and the
// MCP transport, grounded on the teacher's main.go/app.go NewApp
// construction sequence.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/automobile-core/server/internal/authoring"
	"github.com/automobile-core/server/internal/config"
	executil "github.com/automobile-core/server/internal/exec"
	"github.com/automobile-core/server/internal/hierarchy"
	"github.com/automobile-core/server/internal/installer"
	"github.com/automobile-core/server/internal/lifecycle"
	"github.com/automobile-core/server/internal/observe"
	"github.com/automobile-core/server/internal/plan"
	"github.com/automobile-core/server/internal/probe"
	"github.com/automobile-core/server/internal/registry"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/screenshot"
	"github.com/automobile-core/server/internal/session"
	"github.com/automobile-core/server/internal/toolpath"
	"github.com/automobile-core/server/internal/tools"
	"github.com/automobile-core/server/internal/wda"
	mcpserver "github.com/automobile-core/server/mcp"
)

const appVersion = "1.0.0"

var accessibilityServiceSpec = installer.Spec{
	Name:            "automobile-a11y",
	DownloadURL:     "https://github.com/automobile-core/a11y-service/releases/latest/download/a11y-service.apk",
	PackageName:     "dev.automobilecore.a11y",
	IsAccessibility: true,
}

var keyboardSpec = installer.Spec{
	Name:          "automobile-keyboard",
	DownloadURL:   "https://github.com/automobile-core/adb-keyboard/releases/latest/download/adb-keyboard.apk",
	PackageName:   "com.android.adbkeyboard",
	IMEIdentifier: "com.android.adbkeyboard/.AdbIME",
}

// App holds every wired component for the lifetime of the process.
type App struct {
	store    *config.Store
	run      *runner.Runner
	discover *toolpath.Discovery
	reg      *registry.Registry
	wdaPool  *wda.Pool
	prober   *probe.Prober
	a11y     *installer.Installer
	keyboard *installer.Installer
	sessions *session.Manager
	execer   *executil.Executor
	observer *observe.Cache
	lifecycleMon *lifecycle.Monitor
	authoringMgr *authoring.Manager
	toolRegistry *tools.Registry
	planExecutor *plan.Executor
	mcp          *mcpserver.Server
}

// New constructs a fully-wired App. configPath may be empty to use the
// default $HOME/.auto-mobile/config.json.
func New(configPath string) (*App, error) {
	store, err := config.New(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	run := runner.New(runner.WithLogger(logger))
	discover := toolpath.New(run)
	reg := registry.New(discover, run)

	projectPath := store.EnvString("KOTLINPOET_JAR_PATH", "")
	wdaPool := wda.NewPool(run, discover, projectPath)
	prober := probe.New(discover, run, wdaPool)
	a11y := installer.New(accessibilityServiceSpec, discover, run)
	keyboard := installer.New(keyboardSpec, discover, run)
	sessions := session.New(reg, prober, a11y, wdaPool)
	execer := executil.New(discover, run, wdaPool)

	androidDumper := hierarchy.NewAndroidDumper(discover, run)
	iosDumper := hierarchy.NewIOSNormalizer(wdaPool)
	shooter := screenshot.NewCapture(discover, run)

	cacheDir := filepath.Join(cacheRoot(), "screenshots")
	observer := observe.New(shooter, prober, androidDumper, iosDumper, cacheDir)

	lifecycleMon := lifecycle.New(discover, run, func(err error) {
		logger.Error().Err(err).Msg("lifecycle listener error")
	})

	planDir := filepath.Join(cacheRoot(), "plans")
	authoringMgr := authoring.New(run, planDir, sourceConfigsFrom(store))
	authoringMgr.AttachLifecycle(lifecycleMon)

	toolRegistry := tools.New()
	toolRegistry.SetRecorder(authoringMgr)
	toolRegistry.SetLifecycle(lifecycleMon)

	a := &App{
		store: store, run: run, discover: discover, reg: reg, wdaPool: wdaPool,
		prober: prober, a11y: a11y, keyboard: keyboard, sessions: sessions,
		execer: execer, observer: observer, lifecycleMon: lifecycleMon,
		authoringMgr: authoringMgr, toolRegistry: toolRegistry,
	}
	a.registerTools()
	a.planExecutor = plan.New(toolRegistry)
	a.mcp = mcpserver.New("automobile-server", appVersion, toolRegistry, toolMetadata)
	return a, nil
}

func cacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".auto-mobile")
}

func sourceConfigsFrom(store *config.Store) []authoring.SourceConfig {
	doc := store.Get()
	out := make([]authoring.SourceConfig, 0, len(doc.Apps))
	for _, appCfg := range doc.Apps {
		if appCfg.SourceDir == "" {
			continue
		}
		out = append(out, authoring.SourceConfig{AppID: appCfg.AppID, SourceDir: appCfg.SourceDir})
	}
	return out
}

// ServeMCP blocks serving the wired Tool Registry over MCP stdio.
func (a *App) ServeMCP() error {
	return a.mcp.Start()
}

// Close releases background resources (WDA host processes).
func (a *App) Close() {
	a.wdaPool.StopAll()
	a.store.Stop()
}

// Doctor resolves every platform tool this core depends on and reports
// what it found, grounded on the teacher's bin_common.go/bin_linux.go
// tool-discovery diagnostics.
func (a *App) Doctor(ctx context.Context) error {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"TOOL", "PATH", "SOURCE", "VERSION"}),
	)
	for _, tool := range []string{"adb", "emulator", "xcrun", "xcodebuild", "idb", "axe"} {
		res, err := a.discover.Locate(ctx, tool)
		if err != nil {
			table.Append([]string{tool, "NOT FOUND", err.Error(), "-"})
			continue
		}
		table.Append([]string{tool, res.Path, res.Source.String(), res.Version})
	}
	return table.Render()
}

// ListDevices prints every currently booted Android and iOS device in a
// table, grounded on the same tool-discovery reporting style as Doctor.
func (a *App) ListDevices(ctx context.Context) error {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"PLATFORM", "ID", "NAME", "STATE"}),
	)
	android, err := a.reg.ListBooted(ctx, registry.Android)
	if err != nil {
		return err
	}
	ios, err := a.reg.ListBooted(ctx, registry.IOS)
	if err != nil {
		return err
	}
	for _, d := range android {
		table.Append([]string{"android", d.ID, d.Name, string(d.State)})
	}
	for _, d := range ios {
		table.Append([]string{"ios", d.ID, d.Name, string(d.State)})
	}
	return table.Render()
}

// ValidatePlanFile parses a plan file and reports its step count without
// executing anything.
func ValidatePlanFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := plan.Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("plan %q: %d step(s)\n", p.Name, len(p.Steps))
	return nil
}

// RunPlanFile parses and executes a plan file against deviceID (or the
// session manager's current device when deviceID is empty).
func (a *App) RunPlanFile(ctx context.Context, path, deviceID string, startStep int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := plan.Parse(data)
	if err != nil {
		return err
	}

	if deviceID == "" {
		d, state := a.sessions.Current()
		if state != session.StateReady {
			return fmt.Errorf("no ready device; pass --device or run a tool that calls ensureDeviceReady first")
		}
		deviceID = d.ID
	}
	for i := range p.Steps {
		if p.Steps[i].Params == nil {
			p.Steps[i].Params = map[string]any{}
		}
		if _, ok := p.Steps[i].Params["deviceId"]; !ok {
			p.Steps[i].Params["deviceId"] = deviceID
		}
	}

	res, err := a.planExecutor.Execute(ctx, p, startStep)
	if err != nil {
		return err
	}
	out, _ := yaml.Marshal(res)
	fmt.Println(string(out))
	return nil
}
