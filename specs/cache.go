package specs

// On-disk contract of the permanent cache.
//
// Each wrapped diagnostic persists its "new since load" partition into
// uniquely named shard files so that concurrent processes sharing a
// filesystem never collide:
//
//	{name}_{function}.cache-{host}-{pid}-{seq}
//
// where seq is the first free suffix in [0, MaxShardSeq). Garbage
// collection consolidates every shard of a cache into a single canonical
// file that omits the host/pid/seq suffix:
//
//	{name}_{function}.cache
//
// and deletes the originals. Loading globs ShardGlobSuffix so both shard
// and canonical files fold in.
//
// The payload of every file is a gob-encoded pair
// (averageExecTime, entries): the running average execution time of the
// wrapped function in seconds, and the mapping from entry key to result.
const (
	// ShardSuffix is the format suffix appended to the cache base name for
	// per-process shard files: host, pid, sequence number.
	ShardSuffix = "-%s-%d-%d"

	// ShardGlobSuffix matches canonical and shard files alike.
	ShardGlobSuffix = "*"

	// MaxShardSeq bounds the sequence suffix search. When all suffixes for
	// the current host/pid are taken, the cache falls back to a forced
	// garbage collection instead of overwriting a foreign shard.
	MaxShardSeq = 100
)
