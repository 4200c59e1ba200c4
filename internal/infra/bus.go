package infra

// EventType represents the type of event in the system
type EventType int

const (
	SourceLoaded EventType = iota
	MergeConflict
	CacheSaved
	CacheLoaded
	CacheConsolidated
)

// String returns the string representation of the EventType
func (et EventType) String() string {
	switch et {
	case SourceLoaded:
		return "SourceLoaded"
	case MergeConflict:
		return "MergeConflict"
	case CacheSaved:
		return "CacheSaved"
	case CacheLoaded:
		return "CacheLoaded"
	case CacheConsolidated:
		return "CacheConsolidated"
	default:
		return "Unknown"
	}
}

type Event interface{ EventType() EventType }
type Handler func(Event)
type Bus struct{ subs map[EventType][]Handler }

func NewBus() *Bus { return &Bus{subs: map[EventType][]Handler{}} }
func (b *Bus) Publish(e Event) {
	for _, h := range b.subs[e.EventType()] {
		h(e)
	}
}
func (b *Bus) Subscribe(evt EventType, h Handler) { b.subs[evt] = append(b.subs[evt], h) }

// SourceLoadedEvent is published after a data source's batch merged.
type SourceLoadedEvent struct {
	Source string
	Count  int
}

func (e SourceLoadedEvent) EventType() EventType { return SourceLoaded }

// MergeConflictEvent is published when two sources disagree on a key.
type MergeConflictEvent struct {
	Key string
}

func (e MergeConflictEvent) EventType() EventType { return MergeConflict }

// CacheSavedEvent is published after a cache shard hit disk.
type CacheSavedEvent struct {
	Cache   string
	File    string
	Entries int
}

func (e CacheSavedEvent) EventType() EventType { return CacheSaved }

// CacheLoadedEvent is published after shard files folded into memory.
type CacheLoadedEvent struct {
	Cache   string
	Files   int
	Entries int
}

func (e CacheLoadedEvent) EventType() EventType { return CacheLoaded }

// CacheConsolidatedEvent is published after garbage collection rewrote
// the shards into the canonical file.
type CacheConsolidatedEvent struct {
	Cache   string
	File    string
	Removed int
}

func (e CacheConsolidatedEvent) EventType() EventType { return CacheConsolidated }
