package wda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/automobile-core/server/internal/runner"
	"github.com/automobile-core/server/internal/toolpath"
)

// Pool lazily launches and caches one Host per device UDID, so repeated
// observations reuse the same WebDriverAgent process instead of
// relaunching xcodebuild on every call.
type Pool struct {
	run         *runner.Runner
	discover    *toolpath.Discovery
	projectPath string

	mu    sync.Mutex
	hosts map[string]*Host
}

// NewPool constructs a Pool. projectPath is the .xcodeproj path for
// WebDriverAgentRunner.
func NewPool(r *runner.Runner, discover *toolpath.Discovery, projectPath string) *Pool {
	return &Pool{run: r, discover: discover, projectPath: projectPath, hosts: make(map[string]*Host)}
}

// Get returns the Host for udid, launching one if none is running yet.
func (p *Pool) Get(ctx context.Context, udid string) (*Host, error) {
	p.mu.Lock()
	if h, ok := p.hosts[udid]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	if p.projectPath == "" {
		return nil, fmt.Errorf("wda: no WebDriverAgentRunner project configured")
	}

	h, err := Launch(ctx, p.run, p.discover, udid, p.projectPath, 60*time.Second)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.hosts[udid] = h
	p.mu.Unlock()
	return h, nil
}

// Stop stops and forgets the host for udid, if any.
func (p *Pool) Stop(udid string) {
	p.mu.Lock()
	h, ok := p.hosts[udid]
	delete(p.hosts, udid)
	p.mu.Unlock()
	if ok {
		h.Stop()
	}
}

// StopAll stops every running host, used on process shutdown.
func (p *Pool) StopAll() {
	p.mu.Lock()
	hosts := make([]*Host, 0, len(p.hosts))
	for _, h := range p.hosts {
		hosts = append(hosts, h)
	}
	p.hosts = make(map[string]*Host)
	p.mu.Unlock()
	for _, h := range hosts {
		h.Stop()
	}
}
