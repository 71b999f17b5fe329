package app

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/automobile-core/server/internal/registry"
	"github.com/automobile-core/server/internal/tools"
	mcpserver "github.com/automobile-core/server/mcp"
)

// toolMetadata supplies MCP-facing descriptions for every name
// registerTools below wires into the Tool Registry.
var toolMetadata = map[string]mcpserver.ToolMeta{
	"ensureDeviceReady": {
		Description: "Resolve, boot if needed and verify a ready Android or iOS device",
		ParamDescriptions: map[string]string{
			"platform":   "\"android\", \"ios\" or empty for either",
			"deviceId":   "pin a specific device id instead of auto-selecting",
		},
	},
	"listDevices": {Description: "List currently booted devices across both platforms"},
	"tap": {
		Description: "Tap at a screen coordinate",
		ParamDescriptions: map[string]string{"deviceId": "target device id", "x": "x coordinate", "y": "y coordinate"},
	},
	"swipe": {
		Description: "Swipe from one coordinate to another",
		ParamDescriptions: map[string]string{
			"deviceId": "target device id", "x1": "start x", "y1": "start y",
			"x2": "end x", "y2": "end y", "durationMs": "swipe duration in milliseconds",
		},
	},
	"longPress": {
		Description:       "Hold a touch at one coordinate",
		ParamDescriptions: map[string]string{"deviceId": "target device id", "x": "x coordinate", "y": "y coordinate", "durationMs": "hold duration in milliseconds"},
	},
	"typeText": {
		Description:       "Type text into the currently-focused field",
		ParamDescriptions: map[string]string{"deviceId": "target device id", "text": "text to type"},
	},
	"keyEvent": {
		Description:       "Send a named key event (back, home, enter, ...)",
		ParamDescriptions: map[string]string{"deviceId": "target device id", "name": "key name"},
	},
	"observe": {
		Description:       "Capture the current screenshot, view hierarchy and foreground app",
		ParamDescriptions: map[string]string{"deviceId": "target device id"},
	},
	"startAuthoring": {
		Description: "Start recording a test authoring session",
		ParamDescriptions: map[string]string{
			"deviceId": "device the session runs against", "appId": "app under test",
			"description": "human-readable session description",
		},
	},
	"stopAuthoring": {Description: "Stop the active authoring session and write its plan"},
	"getConfig":     {Description: "Return the current persisted configuration document"},
}

func (a *App) registerTools() {
	a.toolRegistry.Register("ensureDeviceReady", []tools.ParamSpec{
		{Name: "platform", Type: tools.TypeString},
		{Name: "deviceId", Type: tools.TypeString},
	}, a.handleEnsureDeviceReady)

	a.toolRegistry.Register("listDevices", nil, a.handleListDevices)

	a.toolRegistry.Register("tap", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "x", Type: tools.TypeNumber, Required: true},
		{Name: "y", Type: tools.TypeNumber, Required: true},
	}, a.handleTap)

	a.toolRegistry.Register("swipe", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "x1", Type: tools.TypeNumber, Required: true},
		{Name: "y1", Type: tools.TypeNumber, Required: true},
		{Name: "x2", Type: tools.TypeNumber, Required: true},
		{Name: "y2", Type: tools.TypeNumber, Required: true},
		{Name: "durationMs", Type: tools.TypeNumber},
	}, a.handleSwipe)

	a.toolRegistry.Register("longPress", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "x", Type: tools.TypeNumber, Required: true},
		{Name: "y", Type: tools.TypeNumber, Required: true},
		{Name: "durationMs", Type: tools.TypeNumber},
	}, a.handleLongPress)

	a.toolRegistry.Register("typeText", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "text", Type: tools.TypeString, Required: true},
	}, a.handleTypeText)

	a.toolRegistry.Register("keyEvent", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "name", Type: tools.TypeString, Required: true},
	}, a.handleKeyEvent)

	a.toolRegistry.Register("observe", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
	}, a.handleObserve)

	a.toolRegistry.Register("startAuthoring", []tools.ParamSpec{
		{Name: "deviceId", Type: tools.TypeString, Required: true},
		{Name: "appId", Type: tools.TypeString, Required: true},
		{Name: "description", Type: tools.TypeString},
	}, a.handleStartAuthoring)

	a.toolRegistry.Register("stopAuthoring", nil, a.handleStopAuthoring)

	a.toolRegistry.Register("getConfig", nil, a.handleGetConfig)
}

func deviceArg(params map[string]any) registry.Device {
	id, _ := params["deviceId"].(string)
	platform := registry.Android
	if registry.LooksLikeIOSIdentifier(id) {
		platform = registry.IOS
	}
	return registry.Device{ID: id, Platform: platform}
}

func intArg(params map[string]any, name string) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (a *App) handleEnsureDeviceReady(ctx context.Context, params map[string]any) (any, error) {
	platform, _ := params["platform"].(string)
	deviceID, _ := params["deviceId"].(string)
	d, err := a.sessions.EnsureDeviceReady(ctx, platform, deviceID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (a *App) handleListDevices(ctx context.Context, params map[string]any) (any, error) {
	android, err := a.reg.ListBooted(ctx, registry.Android)
	if err != nil {
		return nil, err
	}
	ios, err := a.reg.ListBooted(ctx, registry.IOS)
	if err != nil {
		return nil, err
	}
	return map[string]any{"android": android, "ios": ios}, nil
}

// resolveDevice re-derives a device's real platform from the device
// registry rather than trusting the UUID heuristic alone, since a
// caller-supplied deviceId for a non-default session may not look like
// a UUID (e.g. an Android emulator serial never does).
func (a *App) resolveDevice(ctx context.Context, id string) registry.Device {
	for _, plat := range []registry.Platform{registry.Android, registry.IOS} {
		devices, err := a.reg.ListBooted(ctx, plat)
		if err != nil {
			continue
		}
		for _, d := range devices {
			if d.ID == id {
				return d
			}
		}
	}
	return deviceArg(map[string]any{"deviceId": id})
}

func (a *App) handleTap(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	d := a.resolveDevice(ctx, deviceID)
	if err := a.execer.Tap(ctx, d, intArg(params, "x"), intArg(params, "y")); err != nil {
		return nil, err
	}
	return map[string]any{"tapped": true}, nil
}

func (a *App) handleSwipe(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	d := a.resolveDevice(ctx, deviceID)
	duration := intArg(params, "durationMs")
	if duration == 0 {
		duration = 300
	}
	err := a.execer.Swipe(ctx, d, intArg(params, "x1"), intArg(params, "y1"), intArg(params, "x2"), intArg(params, "y2"), duration)
	if err != nil {
		return nil, err
	}
	return map[string]any{"swiped": true}, nil
}

func (a *App) handleLongPress(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	d := a.resolveDevice(ctx, deviceID)
	duration := intArg(params, "durationMs")
	if duration == 0 {
		duration = 1000
	}
	err := a.execer.LongPress(ctx, d, intArg(params, "x"), intArg(params, "y"), duration)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pressed": true}, nil
}

func (a *App) handleTypeText(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	text, _ := params["text"].(string)
	d := a.resolveDevice(ctx, deviceID)
	if d.Platform == registry.Android {
		if _, err := a.keyboard.EnsureActive(ctx, d.ID); err != nil {
			return nil, fmt.Errorf("adb keyboard not ready: %w", err)
		}
	}
	if err := a.execer.TypeText(ctx, d, text); err != nil {
		return nil, err
	}
	return map[string]any{"typed": len(text)}, nil
}

func (a *App) handleKeyEvent(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	name, _ := params["name"].(string)
	d := a.resolveDevice(ctx, deviceID)
	if err := a.execer.KeyEvent(ctx, d, name); err != nil {
		return nil, err
	}
	return map[string]any{"sent": name}, nil
}

func (a *App) handleObserve(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	d := a.resolveDevice(ctx, deviceID)
	obs, err := a.observer.Observe(ctx, d)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"screenshotBase64": base64.StdEncoding.EncodeToString(obs.Screenshot),
		"tree":             obs.Tree,
		"active":           obs.Active,
		"timestamp":        obs.Timestamp,
	}, nil
}

func (a *App) handleStartAuthoring(ctx context.Context, params map[string]any) (any, error) {
	deviceID, _ := params["deviceId"].(string)
	appID, _ := params["appId"].(string)
	description, _ := params["description"].(string)
	id, err := a.authoringMgr.Start(deviceID, appID, description)
	if err != nil {
		return nil, err
	}
	a.lifecycleMon.Track(deviceID, appID)
	return map[string]any{"sessionId": id}, nil
}

func (a *App) handleStopAuthoring(ctx context.Context, params map[string]any) (any, error) {
	path, err := a.authoringMgr.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"planPath": path}, nil
}

func (a *App) handleGetConfig(ctx context.Context, params map[string]any) (any, error) {
	return a.store.Get(), nil
}
