package observe

import (
	"bytes"
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/automobile-core/server/internal/hierarchy"
	"github.com/automobile-core/server/internal/probe"
	"github.com/automobile-core/server/internal/registry"
)

// Observation is the tuple the cache either serves from memory or
// builds fresh: screenshot bytes, perceptual hash, view tree, active
// window and the time it was captured (§3 GLOSSARY).
type Observation struct {
	Screenshot []byte
	Hash       Hash
	Tree       *hierarchy.Tree
	Active     *probe.Active
	Timestamp  time.Time
}

// Dumper produces a view-hierarchy Tree for a device id/udid; satisfied
// by both hierarchy.AndroidDumper and hierarchy.IOSNormalizer.
type Dumper interface {
	Dump(ctx context.Context, id string) (*hierarchy.Tree, error)
}

// ActiveProber resolves the focused window for a device; satisfied by
// *probe.Prober.
type ActiveProber interface {
	GetActive(ctx context.Context, d registry.Device) (*probe.Active, error)
}

// Shooter captures a raw screenshot for a device; satisfied by
// *screenshot.Capture.
type Shooter interface {
	Shoot(ctx context.Context, deviceID string) ([]byte, error)
	ShootIOS(ctx context.Context, udid string) ([]byte, error)
}

const (
	minSimilarity       = 99.8
	fastPathBuffer      = 10.0
	maxEntries          = 50
	treeTTL             = 60 * time.Second
	screenshotBufferTTL = 10 * time.Minute
	diskCapBytes        = 128 << 20
)

type cacheEntry struct {
	fingerprint   string
	obs           Observation
	treeExpiresAt time.Time
	shotExpiresAt time.Time
}

// Cache is the Observation Cache (component F): it short-circuits a
// fresh view-tree dump whenever the screen is perceptually unchanged for
// the active window's fingerprint.
type Cache struct {
	shooter Shooter
	prober  ActiveProber
	android Dumper
	ios     Dumper
	diskDir string

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	sf singleflight.Group
}

// New constructs a Cache. diskDir may be empty to disable the on-disk
// bulk-comparison fast-path filter (§4.6 step 4).
func New(shot Shooter, prober ActiveProber, android, ios Dumper, diskDir string) *Cache {
	if diskDir != "" {
		_ = os.MkdirAll(diskDir, 0o755)
	}
	return &Cache{
		shooter: shot,
		prober:  prober,
		android: android,
		ios:     ios,
		diskDir: diskDir,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Fingerprint hashes appId||activityName into the cache key F (§4.6
// step 2).
func Fingerprint(appID, activityName string) string {
	sum := sha256.Sum256([]byte(appID + "||" + activityName))
	return hex.EncodeToString(sum[:])[:16]
}

// Observe implements the observe(device) -> Observation contract:
// steady UI is served from cache, changed UI triggers exactly one
// rebuild per fingerprint even under concurrent callers.
func (c *Cache) Observe(ctx context.Context, d registry.Device) (Observation, error) {
	active, err := c.prober.GetActive(ctx, d)
	if err != nil {
		return Observation{}, err
	}
	fp := Fingerprint(active.AppID, active.ActivityName)

	shotBytes, err := c.shoot(ctx, d)
	if err != nil {
		return Observation{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(shotBytes))
	if err != nil {
		return Observation{}, err
	}
	newHash := ComputeHash(img)

	if cached, ok := c.probe(fp, newHash, img); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(fp, func() (interface{}, error) {
		return c.rebuild(ctx, d, fp, active, shotBytes, newHash)
	})
	if err != nil {
		return Observation{}, err
	}
	return result.(Observation), nil
}

// probe implements §4.6 step 3: a cached entry for fp whose screenshot
// pixel-matches the new one at >= 99.8% similarity is returned as-is.
// The tree TTL (60s) gates reuse of the stored tree; the longer
// screenshot-buffer TTL (10min) only governs how long the raw bytes stay
// around for comparison purposes once the tree itself has gone stale.
func (c *Cache) probe(fp string, newHash Hash, newImg image.Image) (Observation, bool) {
	c.mu.Lock()
	el, ok := c.items[fp]
	if !ok {
		c.mu.Unlock()
		return Observation{}, false
	}
	entry := el.Value.(*cacheEntry)
	now := time.Now()
	if now.After(entry.shotExpiresAt) {
		c.removeLocked(el)
		c.mu.Unlock()
		return Observation{}, false
	}
	if now.After(entry.treeExpiresAt) {
		c.mu.Unlock()
		return Observation{}, false
	}
	c.ll.MoveToFront(el)
	cachedObs := entry.obs
	c.mu.Unlock()

	if Similarity(newHash, cachedObs.Hash) < minSimilarity-fastPathBuffer {
		return Observation{}, false
	}
	cachedImg, _, err := image.Decode(bytes.NewReader(cachedObs.Screenshot))
	if err != nil {
		return Observation{}, false
	}
	if PixelMatch(newImg, cachedImg) < minSimilarity {
		return Observation{}, false
	}
	return cachedObs, true
}

// rebuild performs the miss path: dump the tree, store the new entry and
// evict as needed (§4.6 step 5-6).
func (c *Cache) rebuild(ctx context.Context, d registry.Device, fp string, active *probe.Active, shotBytes []byte, hash Hash) (Observation, error) {
	dumper := c.android
	if d.Platform == registry.IOS {
		dumper = c.ios
	}
	tree, err := dumper.Dump(ctx, d.ID)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Screenshot: shotBytes, Hash: hash, Tree: tree, Active: active, Timestamp: time.Now()}
	c.store(fp, obs)
	c.persistToDisk(fp, shotBytes)
	return obs, nil
}

func (c *Cache) store(fp string, obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	entry := &cacheEntry{
		fingerprint:   fp,
		obs:           obs,
		treeExpiresAt: now.Add(treeTTL),
		shotExpiresAt: now.Add(screenshotBufferTTL),
	}
	if el, ok := c.items[fp]; ok {
		el.Value = entry
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(entry)
		c.items[fp] = el
	}
	for c.ll.Len() > maxEntries {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.fingerprint)
	c.ll.Remove(el)
}

func (c *Cache) shoot(ctx context.Context, d registry.Device) ([]byte, error) {
	if d.Platform == registry.IOS {
		return c.shooter.ShootIOS(ctx, d.ID)
	}
	return c.shooter.Shoot(ctx, d.ID)
}

// persistToDisk writes the screenshot under the fingerprint's name and
// enforces the 128 MiB on-disk cap by deleting oldest-mtime files (§4.6
// step 6), enabling the bulk perceptual-hash comparison filter in step 4
// to scan a bounded directory across process restarts.
func (c *Cache) persistToDisk(fp string, data []byte) {
	if c.diskDir == "" {
		return
	}
	path := filepath.Join(c.diskDir, fp+".png")
	_ = os.WriteFile(path, data, 0o644)
	c.enforceDiskCap()
}

func (c *Cache) enforceDiskCap() {
	entries, err := os.ReadDir(c.diskDir)
	if err != nil {
		return
	}
	type fileInfo struct {
		path  string
		mtime time.Time
		size  int64
	}
	var files []fileInfo
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(c.diskDir, e.Name())
		files = append(files, fileInfo{path: p, mtime: info.ModTime(), size: info.Size()})
		total += info.Size()
	}
	if total <= diskCapBytes {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	for _, f := range files {
		if total <= diskCapBytes {
			break
		}
		_ = os.Remove(f.path)
		total -= f.size
	}
}

// FastPathCandidates scans the on-disk screenshot directory and ranks
// entries by perceptual-hash similarity against newHash, returning only
// those within the minSimilarity-fastPathBuffer band for a subsequent,
// more expensive pixelmatch pass (§4.6 step 4).
func (c *Cache) FastPathCandidates(newHash Hash) []string {
	if c.diskDir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.diskDir)
	if err != nil {
		return nil
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.diskDir, e.Name()))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		if Similarity(newHash, ComputeHash(img)) >= minSimilarity-fastPathBuffer {
			candidates = append(candidates, e.Name())
		}
	}
	return candidates
}
