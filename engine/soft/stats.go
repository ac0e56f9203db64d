package soft

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// stats are the engine counters readable as "stat:<name>" attributes.
type stats struct {
	groups           atomic.Int64
	groupsCompiled   atomic.Int64
	groupsFailed     atomic.Int64
	shadersRequested atomic.Int64
	shadersLoaded    atomic.Int64
	binds            atomic.Int64
	executions       atomic.Int64
	threadInfosLive  atomic.Int64
	contextsLive     atomic.Int64
	errors           atomic.Int64
	warnings         atomic.Int64
}

// statNames lists the statistics in report order.
var statNames = []string{
	"groups",
	"groups_compiled",
	"groups_failed",
	"shaders_requested",
	"shaders_loaded",
	"binds",
	"executions",
	"threadinfos_live",
	"contexts_live",
	"errors",
	"warnings",
	"master_cache_hits",
	"master_cache_size",
}

// stat returns the value of "stat:<name>".
func (e *Engine) stat(name string) (int32, bool) {
	var v int64
	switch strings.TrimPrefix(name, "stat:") {
	case "groups":
		v = e.stats.groups.Load()
	case "groups_compiled":
		v = e.stats.groupsCompiled.Load()
	case "groups_failed":
		v = e.stats.groupsFailed.Load()
	case "shaders_requested":
		v = e.stats.shadersRequested.Load()
	case "shaders_loaded":
		v = e.stats.shadersLoaded.Load()
	case "binds":
		v = e.stats.binds.Load()
	case "executions":
		v = e.stats.executions.Load()
	case "threadinfos_live":
		v = e.stats.threadInfosLive.Load()
	case "contexts_live":
		v = e.stats.contextsLive.Load()
	case "errors":
		v = e.stats.errors.Load()
	case "warnings":
		v = e.stats.warnings.Load()
	case "master_cache_hits":
		v = int64(e.masters.Stats().Hits)
	case "master_cache_size":
		v = int64(e.masters.Len())
	default:
		return 0, false
	}
	return int32(min(v, 1<<31-1)), true
}

// statsReport formats every statistic, one per line.
func (e *Engine) statsReport() string {
	var b strings.Builder
	b.WriteString("soft engine statistics:\n")
	for _, name := range statNames {
		v, _ := e.stat(name)
		fmt.Fprintf(&b, "  %-18s %d\n", name, v)
	}
	return b.String()
}
