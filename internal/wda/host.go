// Package wda hosts and talks to a per-device WebDriverAgent instance:
// the third-party iOS automation HTTP server launched via `xcodebuild
// test-without-building` (§4.8). The core consumes it, never
// re-implements it. Startup/shutdown follow the teacher's subprocess
// lifecycle pattern (runner.Handle terminate sequence) generalised to a
// long-lived HTTP-backed child process.
package wda

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// serverURLMarker matches the stdout marker xcodebuild's WDA runner
// prints once its embedded HTTP server is listening.
var serverURLMarker = regexp.MustCompile(`ServerURLHere->(.*)<-ServerURLHere`)

// Status is the subset of GET /status this core cares about.
type Status struct {
	Ready     bool
	SessionID string
	BundleID  string
}

// Source is the XCUIElementType tree document from GET /source, plus the
// foreground scene name extracted from it.
type Source struct {
	XML       string
	SceneName string
}

// Host manages one running WebDriverAgent instance for one simulator or
// device UDID.
type Host struct {
	udid       string
	baseURL    string
	handle     *runner.Handle
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

// Launch starts `xcodebuild test-without-building` against the given WDA
// project/scheme and blocks until the server reports ready or
// launchTimeout (default 60s) elapses.
func Launch(ctx context.Context, r *runner.Runner, discover *toolpath.Discovery, udid, projectPath string, launchTimeout time.Duration) (*Host, error) {
	if launchTimeout <= 0 {
		launchTimeout = 60 * time.Second
	}
	xcodebuild, err := discover.Locate(ctx, "xcodebuild")
	if err != nil {
		return nil, err
	}

	launchCtx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
		}
	}()

	handle, spawnErr := r.Spawn(launchCtx, xcodebuild.Path,
		"build-for-testing", "test-without-building",
		"-project", projectPath,
		"-scheme", "WebDriverAgentRunner",
		"-destination", "id="+udid,
	)
	if spawnErr != nil {
		return nil, spawnErr
	}

	h := &Host{udid: udid, handle: handle, httpClient: &http.Client{Timeout: 15 * time.Second}}

	urlCh := make(chan string, 1)
	go scanForServerURL(handle.Stdout, urlCh)

	select {
	case url := <-urlCh:
		h.baseURL = url
	case <-time.After(launchTimeout):
		handle.Kill()
		return nil, &coreerrors.TimeoutErr{Op: "wda launch(" + udid + ")", Timeout: launchTimeout.String()}
	case <-ctx.Done():
		handle.Kill()
		return nil, ctx.Err()
	}

	deadline := time.Now().Add(launchTimeout)
	for time.Now().Before(deadline) {
		status, statusErr := h.Status(ctx)
		if statusErr == nil && status.Ready {
			return h, nil
		}
		select {
		case <-ctx.Done():
			handle.Kill()
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	handle.Kill()
	return nil, &coreerrors.TimeoutErr{Op: "wda ready(" + udid + ")", Timeout: launchTimeout.String()}
}

func scanForServerURL(r interface{ Read([]byte) (int, error) }, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if m := serverURLMarker.FindStringSubmatch(scanner.Text()); m != nil {
			out <- strings.TrimSpace(m[1])
			return
		}
	}
}

// Status performs GET /status. Every request is bounded by the HTTP
// client's 15s timeout, during startup and after it alike; no shorter
// timeout is applied once the host is running.
func (h *Host) Status(ctx context.Context) (Status, error) {
	body, err := h.get(ctx, "/status")
	if err != nil {
		return Status{}, err
	}
	ready := gjson.GetBytes(body, "value.ready").Bool()
	bundleID := gjson.GetBytes(body, "value.currentApp.bundleId").String()
	h.mu.Lock()
	sid := h.sessionID
	h.mu.Unlock()
	return Status{Ready: ready, SessionID: sid, BundleID: bundleID}, nil
}

// EnsureSession creates a session for udid if none exists yet (§4.8).
func (h *Host) EnsureSession(ctx context.Context) (string, error) {
	h.mu.Lock()
	if h.sessionID != "" {
		sid := h.sessionID
		h.mu.Unlock()
		return sid, nil
	}
	h.mu.Unlock()

	payload, _ := json.Marshal(map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"platformName": "iOS",
				"udid":         h.udid,
			},
		},
	})
	body, err := h.post(ctx, "/session", payload)
	if err != nil {
		return "", err
	}
	sid := gjson.GetBytes(body, "sessionId").String()
	if sid == "" {
		sid = gjson.GetBytes(body, "value.sessionId").String()
	}
	h.mu.Lock()
	h.sessionID = sid
	h.mu.Unlock()
	return sid, nil
}

// Source performs GET /session/{id}/source and normalises the foreground
// scene name out of the returned XCUIElementType XML.
func (h *Host) Source(ctx context.Context) (Source, error) {
	sid, err := h.EnsureSession(ctx)
	if err != nil {
		return Source{}, err
	}
	body, err := h.get(ctx, "/session/"+sid+"/source")
	if err != nil {
		return Source{}, err
	}
	xmlContent := gjson.GetBytes(body, "value").String()
	if xmlContent == "" {
		xmlContent = string(body)
	}
	return Source{XML: xmlContent, SceneName: extractSceneName(xmlContent)}, nil
}

// extractSceneName pulls a best-effort scene/window name out of the root
// element of the XCUIElementType tree.
func extractSceneName(xml string) string {
	idx := strings.Index(xml, "name=\"")
	if idx == -1 {
		return ""
	}
	rest := xml[idx+len("name=\""):]
	end := strings.Index(rest, "\"")
	if end == -1 {
		return ""
	}
	return rest[:end]
}

// Tap performs a single-finger tap at (x, y) via WDA's /wda/tap/0
// endpoint, the same session-scoped POST shape Source/EnsureSession use.
func (h *Host) Tap(ctx context.Context, x, y int) error {
	sid, err := h.EnsureSession(ctx)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"x": x, "y": y})
	_, err = h.post(ctx, "/session/"+sid+"/wda/tap/0", payload)
	return err
}

// Swipe drags from (x1, y1) to (x2, y2) over durationMs.
func (h *Host) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	sid, err := h.EnsureSession(ctx)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{
		"fromX": x1, "fromY": y1, "toX": x2, "toY": y2,
		"duration": float64(durationMs) / 1000.0,
	})
	_, err = h.post(ctx, "/session/"+sid+"/wda/dragfromtoforduration", payload)
	return err
}

// TypeText sends text to whatever element currently has focus.
func (h *Host) TypeText(ctx context.Context, text string) error {
	sid, err := h.EnsureSession(ctx)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"value": strings.Split(text, "")})
	_, err = h.post(ctx, "/session/"+sid+"/wda/keys", payload)
	return err
}

// PressButton presses a named hardware/virtual button ("home", "volumeUp", ...).
func (h *Host) PressButton(ctx context.Context, name string) error {
	sid, err := h.EnsureSession(ctx)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"name": name})
	_, err = h.post(ctx, "/session/"+sid+"/wda/pressButton", payload)
	return err
}

func (h *Host) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return h.do(req)
}

func (h *Host) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *Host) do(req *http.Request) ([]byte, error) {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("wda request %s failed: %d: %s", req.URL.Path, resp.StatusCode, string(body))
	}
	return body, nil
}

// Stop terminates the xcodebuild subprocess via the shared
// SIGTERM/grace/SIGKILL sequence (§4.8, §4.1).
func (h *Host) Stop() {
	h.handle.Kill()
}
