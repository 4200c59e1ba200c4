package internal

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"shotseries-spec/specs"

	"shotseries-spec/internal/infra"
)

// CachedFunc is the shape of a diagnostic the permanent cache wraps: one
// record plus call kwargs in, a serializable result out.
type CachedFunc func(rec *Record, kwargs specs.Kwargs) (any, error)

// DefaultMaxResultSize caps a cached result's encoded size in bytes.
// Large payloads (full images) are cheaper to recompute from their lazy
// references than to persist per call.
const DefaultMaxResultSize = 4096

// CacheOptions tunes one wrapped diagnostic.
type CacheOptions struct {
	// MaxResultSize caps the gob-encoded size of stored results in
	// bytes. Zero means DefaultMaxResultSize; negative disables the cap.
	MaxResultSize int

	// SkipLoad suppresses the initial folding of on-disk shards,
	// for caches that will be populated and harvested in-process only.
	SkipLoad bool
}

// shardPayload is the on-disk gob payload: the running average execution
// time and the entry mapping. See the naming contract in specs/cache.go.
type shardPayload struct {
	ExecTime float64
	Entries  map[string]any
}

func init() {
	// Result types crossing the gob boundary inside an any must be
	// registered. These cover scalar, slice and named-parameter results;
	// callers with custom result types use RegisterCacheType.
	gob.Register([]float64{})
	gob.Register(map[string]float64{})
	gob.Register(specs.Params{})
	gob.Register([]any{})
}

// RegisterCacheType registers an additional concrete result type for
// cache persistence.
func RegisterCacheType(v any) {
	gob.Register(v)
}

// CacheSet owns the permanent caches of a session. It replaces the
// process-wide file-lock table of older designs: construct one
// explicitly, pass it by reference, and call Close (or SaveAll) at
// shutdown. There are no process-exit hooks.
type CacheSet struct {
	dir    string
	host   string
	pid    int
	bus    *infra.Bus
	log    *slog.Logger
	caches map[string]*PermanentCache
}

// CacheSetOption configures a CacheSet.
type CacheSetOption func(*CacheSet)

// WithBus publishes cache lifecycle events on bus.
func WithBus(bus *infra.Bus) CacheSetOption {
	return func(cs *CacheSet) { cs.bus = bus }
}

// NewCacheSet creates a cache manager rooted at dir. The directory is
// created if missing.
func NewCacheSet(dir string, opts ...CacheSetOption) (*CacheSet, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("resolving hostname: %w", err)
	}
	cs := &CacheSet{
		dir:    dir,
		host:   host,
		pid:    os.Getpid(),
		log:    infra.NewLogger("permcache"),
		caches: make(map[string]*PermanentCache),
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs, nil
}

// Wrap binds a file-name prefix and a key spec to fn and returns the
// caching wrapper. Wrapping the same (prefix, funcName) again returns
// the existing cache unchanged; remember to clear it on disk if the
// function's definition changed.
func (cs *CacheSet) Wrap(prefix string, keySpec KeySpec, funcName string, fn CachedFunc, opts CacheOptions) (*PermanentCache, error) {
	if prefix == "" || funcName == "" {
		return nil, fmt.Errorf("cache prefix and function name are required")
	}
	if fn == nil {
		return nil, fmt.Errorf("cache %s_%s: function is required", prefix, funcName)
	}
	name := prefix + "_" + funcName
	if existing, ok := cs.caches[name]; ok {
		cs.log.Warn("re-wrapping an already cached function", "cache", name)
		return existing, nil
	}

	maxSize := opts.MaxResultSize
	if maxSize == 0 {
		maxSize = DefaultMaxResultSize
	}
	pc := &PermanentCache{
		name:          name,
		base:          filepath.Join(cs.dir, name+".cache"),
		keySpec:       keySpec,
		fn:            fn,
		maxResultSize: maxSize,
		host:          cs.host,
		pid:           cs.pid,
		log:           cs.log,
		bus:           cs.bus,
		loaded:        make(map[string]any),
		fresh:         make(map[string]any),
	}
	if !opts.SkipLoad {
		if err := pc.Load(); err != nil {
			return nil, err
		}
	}
	cs.caches[name] = pc
	return pc, nil
}

// Caches returns the managed caches keyed by name.
func (cs *CacheSet) Caches() map[string]*PermanentCache {
	return cs.caches
}

func (cs *CacheSet) sortedNames() []string {
	names := make([]string, 0, len(cs.caches))
	for name := range cs.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveAll flushes every cache's new partition to disk.
func (cs *CacheSet) SaveAll() error {
	for _, name := range cs.sortedNames() {
		if _, err := cs.caches[name].Save(); err != nil {
			return fmt.Errorf("saving cache %q: %w", name, err)
		}
	}
	return nil
}

// GCAll consolidates every cache's shards. Must be invoked by exactly one
// owning process.
func (cs *CacheSet) GCAll() error {
	for _, name := range cs.sortedNames() {
		if _, err := cs.caches[name].GC(); err != nil {
			return fmt.Errorf("collecting cache %q: %w", name, err)
		}
	}
	return nil
}

// ReloadAll saves and reloads every cache, folding in shards written by
// other processes since the last load.
func (cs *CacheSet) ReloadAll() error {
	for _, name := range cs.sortedNames() {
		pc := cs.caches[name]
		if _, err := pc.Save(); err != nil {
			return fmt.Errorf("saving cache %q: %w", name, err)
		}
		if err := pc.Load(); err != nil {
			return fmt.Errorf("reloading cache %q: %w", name, err)
		}
	}
	return nil
}

// Close flushes all caches. Call at shutdown.
func (cs *CacheSet) Close() error {
	return cs.SaveAll()
}

// CollectNew snapshots every cache's new partition, keyed by cache name.
// Workers call this when a pool drains; the parent folds the snapshots
// back with Harvest so results computed in short-lived workers survive.
func (cs *CacheSet) CollectNew() map[string]map[string]any {
	out := make(map[string]map[string]any, len(cs.caches))
	for name, pc := range cs.caches {
		out[name] = pc.CollectNew()
	}
	return out
}

// Harvest merges worker-collected new partitions into this set's caches.
// Must run strictly after worker completion, never concurrently with
// Save or GC on the same caches.
func (cs *CacheSet) Harvest(updates map[string]map[string]any) {
	for name, entries := range updates {
		if pc, ok := cs.caches[name]; ok {
			pc.MergeNew(entries)
		}
	}
}

func (cs *CacheSet) String() string {
	lines := make([]string, 0, len(cs.caches))
	for _, name := range cs.sortedNames() {
		lines = append(lines, cs.caches[name].String())
	}
	return strings.Join(lines, "\n")
}

// PermanentCache is the cross-process disk-persisted memo of one wrapped
// diagnostic. The in-memory table is split into the partition loaded from
// disk and the partition of results new since load; only the new
// partition is flushed by Save.
type PermanentCache struct {
	mu            sync.Mutex
	name          string
	base          string
	keySpec       KeySpec
	fn            CachedFunc
	maxResultSize int
	host          string
	pid           int
	log           *slog.Logger
	bus           *infra.Bus

	loaded   map[string]any
	fresh    map[string]any
	hits     int
	execTime float64
	nExec    int
}

// EntryKey derives the cache key for a call: the record key plus the
// sorted kwarg name=value pairs. Values are part of the key, so calls
// differing in any kwarg value are distinct entries.
func (pc *PermanentCache) EntryKey(rec *Record, kwargs specs.Kwargs) (string, error) {
	key, err := pc.keySpec.Derive(rec)
	if err != nil {
		return "", err
	}
	if len(kwargs) == 0 {
		return key.String(), nil
	}
	parts := make([]string, 0, len(kwargs))
	for k, v := range kwargs {
		parts = append(parts, k+"="+canonical(v))
	}
	sort.Strings(parts)
	return key.String() + "\x1e" + strings.Join(parts, ","), nil
}

// Call looks the entry up in both partitions and executes the wrapped
// function on a miss, timing it and storing the result in the new
// partition when it fits the size cap.
func (pc *PermanentCache) Call(rec *Record, kwargs specs.Kwargs) (any, error) {
	entryKey, err := pc.EntryKey(rec, kwargs)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	if v, ok := pc.lookup(entryKey); ok {
		pc.hits++
		pc.mu.Unlock()
		return v, nil
	}
	pc.mu.Unlock()

	// Execute outside the lock; fits can run long and parallel workers
	// must not serialize on each other.
	t0 := time.Now()
	result, err := pc.fn(rec, kwargs)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(t0).Seconds()

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.recordExecTime(elapsed)
	if size, err := encodedSize(result); err != nil {
		pc.log.Warn("result not serializable, not cached", "cache", pc.name, "error", err)
	} else if pc.maxResultSize < 0 || size <= pc.maxResultSize {
		pc.fresh[entryKey] = result
	}
	return result, nil
}

func (pc *PermanentCache) lookup(entryKey string) (any, bool) {
	if v, ok := pc.loaded[entryKey]; ok {
		return v, true
	}
	v, ok := pc.fresh[entryKey]
	return v, ok
}

func (pc *PermanentCache) recordExecTime(elapsed float64) {
	pc.execTime = (pc.execTime*float64(pc.nExec) + elapsed) / float64(pc.nExec+1)
	pc.nExec++
}

func encodedSize(v any) (int, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func (pc *PermanentCache) shardFile(seq int) string {
	return pc.base + fmt.Sprintf(specs.ShardSuffix, pc.host, pc.pid, seq)
}

// Save flushes the new partition to a uniquely named shard and folds it
// into the loaded partition. Returns the file written, or "" when there
// was nothing new. A shard collision retries under the next sequence
// suffix; with every suffix taken, Save falls back to a forced GC.
func (pc *PermanentCache) Save() (string, error) {
	pc.mu.Lock()
	if len(pc.fresh) == 0 {
		pc.mu.Unlock()
		return "", nil
	}

	var file string
	var f *os.File
	for seq := 0; seq < specs.MaxShardSeq; seq++ {
		candidate := pc.shardFile(seq)
		handle, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			pc.mu.Unlock()
			return "", fmt.Errorf("creating shard %q: %w", candidate, err)
		}
		file, f = candidate, handle
		break
	}
	if f == nil {
		pc.mu.Unlock()
		pc.log.Warn("all shard suffixes taken, forcing garbage collection", "cache", pc.name)
		return pc.GC()
	}

	payload := shardPayload{ExecTime: pc.execTime, Entries: pc.fresh}
	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		os.Remove(file)
		pc.mu.Unlock()
		return "", fmt.Errorf("writing shard %q: %w", file, err)
	}
	if err := f.Close(); err != nil {
		pc.mu.Unlock()
		return "", fmt.Errorf("closing shard %q: %w", file, err)
	}

	count := len(pc.fresh)
	for k, v := range pc.fresh {
		pc.loaded[k] = v
	}
	pc.fresh = make(map[string]any)
	pc.mu.Unlock()

	pc.log.Info("cache shard saved", "cache", pc.name, "file", file, "entries", count)
	if pc.bus != nil {
		pc.bus.Publish(infra.CacheSavedEvent{Cache: pc.name, File: file, Entries: count})
	}
	return file, nil
}

func readShard(file string) (shardPayload, error) {
	f, err := os.Open(file)
	if err != nil {
		return shardPayload{}, fmt.Errorf("opening shard %q: %w", file, err)
	}
	defer f.Close()
	var payload shardPayload
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		// Corruption is not auto-repaired; it surfaces here.
		return shardPayload{}, fmt.Errorf("decoding shard %q: %w", file, err)
	}
	return payload, nil
}

func (pc *PermanentCache) globShards() ([]string, error) {
	files, err := filepath.Glob(pc.base + specs.ShardGlobSuffix)
	if err != nil {
		return nil, fmt.Errorf("globbing shards for %q: %w", pc.name, err)
	}
	sort.Strings(files)
	return files, nil
}

// Load globs every shard (and the canonical file, when present) and folds
// the entries into the loaded partition. Execution times of the files
// fold into the running average. Hit counting restarts.
func (pc *PermanentCache) Load() error {
	files, err := pc.globShards()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	total := 0
	for _, file := range files {
		payload, err := readShard(file)
		if err != nil {
			return err
		}
		for k, v := range payload.Entries {
			pc.loaded[k] = v
		}
		total += len(payload.Entries)
		if payload.ExecTime > 0 {
			pc.recordExecTime(payload.ExecTime)
		}
	}
	pc.hits = 0

	if len(files) > 0 {
		pc.log.Info("cache loaded", "cache", pc.name, "files", len(files), "entries", len(pc.loaded))
	}
	if pc.bus != nil {
		pc.bus.Publish(infra.CacheLoadedEvent{Cache: pc.name, Files: len(files), Entries: total})
	}
	return nil
}

// GC consolidates every shard of this cache into the canonical file
// (the base name without host/pid suffix), deletes the shards, and keeps
// the union merged in memory. Exactly one owner may run this; it must
// never race a concurrent Save on the same cache files.
func (pc *PermanentCache) GC() (string, error) {
	files, err := pc.globShards()
	if err != nil {
		return "", err
	}

	pc.mu.Lock()
	for _, file := range files {
		payload, err := readShard(file)
		if err != nil {
			pc.mu.Unlock()
			return "", err
		}
		for k, v := range payload.Entries {
			pc.loaded[k] = v
		}
	}
	for k, v := range pc.fresh {
		pc.loaded[k] = v
	}
	pc.fresh = make(map[string]any)

	payload := shardPayload{ExecTime: pc.execTime, Entries: pc.loaded}
	f, err := os.Create(pc.base)
	if err != nil {
		pc.mu.Unlock()
		return "", fmt.Errorf("creating canonical cache file %q: %w", pc.base, err)
	}
	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		pc.mu.Unlock()
		return "", fmt.Errorf("writing canonical cache file %q: %w", pc.base, err)
	}
	if err := f.Close(); err != nil {
		pc.mu.Unlock()
		return "", fmt.Errorf("closing canonical cache file %q: %w", pc.base, err)
	}

	removed := 0
	for _, file := range files {
		if file == pc.base {
			continue
		}
		if err := os.Remove(file); err != nil {
			pc.mu.Unlock()
			return "", fmt.Errorf("removing shard %q: %w", file, err)
		}
		removed++
	}
	pc.mu.Unlock()

	pc.log.Info("cache consolidated", "cache", pc.name, "file", pc.base, "shards_removed", removed)
	if pc.bus != nil {
		pc.bus.Publish(infra.CacheConsolidatedEvent{Cache: pc.name, File: pc.base, Removed: removed})
	}
	return pc.base, nil
}

// CollectNew snapshots the new partition for harvesting.
func (pc *PermanentCache) CollectNew() map[string]any {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make(map[string]any, len(pc.fresh))
	for k, v := range pc.fresh {
		out[k] = v
	}
	return out
}

// MergeNew folds harvested entries into the new partition, so a later
// Save persists them.
func (pc *PermanentCache) MergeNew(entries map[string]any) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for k, v := range entries {
		pc.fresh[k] = v
	}
}

// Len returns the total entry count across both partitions.
func (pc *PermanentCache) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.loaded) + len(pc.fresh)
}

// Hits returns the lookup hits since the last Load.
func (pc *PermanentCache) Hits() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.hits
}

// AvgExecTime returns the running average execution time in seconds.
func (pc *PermanentCache) AvgExecTime() float64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.execTime
}

func (pc *PermanentCache) String() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	saved := float64(pc.hits) * pc.execTime
	if len(pc.fresh) == 0 {
		return fmt.Sprintf("<Cache %q (%d entries, %d hits = %.1fs saved)>",
			pc.name, len(pc.loaded), pc.hits, saved)
	}
	return fmt.Sprintf("<Cache %q (%d entries (%d new), %d hits = %.1fs saved)>",
		pc.name, len(pc.loaded)+len(pc.fresh), len(pc.fresh), pc.hits, saved)
}
