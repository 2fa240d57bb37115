// Package diagnostics implements the bounded chronological merge of
// local and remote telemetry events (spec.md §4.5).
package diagnostics

import (
	"sort"
	"sync"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// Log holds two append-only event sequences — local and remote — and
// prunes entries older than models.DiagnosticsRetention from the tail
// of either sequence on every insert. It is exclusively owned by its
// call controller and is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	local  []models.DiagnosticsEvent
	remote []models.DiagnosticsEvent
	now    func() time.Time
}

// New creates an empty diagnostics log.
func New() *Log {
	return &Log{now: time.Now}
}

// AppendLocal records an event produced by this peer's own stats loop.
func (l *Log) AppendLocal(e models.DiagnosticsEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.local = prune(append(l.local, e), l.now())
}

// AppendRemote records an event received from the peer over the diag
// data channel.
func (l *Log) AppendRemote(e models.DiagnosticsEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remote = prune(append(l.remote, e), l.now())
}

// prune drops entries older than the retention window, scanning from
// the tail since entries are appended in non-decreasing wall-clock
// order within a single sequence.
func prune(events []models.DiagnosticsEvent, now time.Time) []models.DiagnosticsEvent {
	cutoff := now.Add(-models.DiagnosticsRetention)
	start := 0
	for start < len(events) && events[start].Timestamp.Before(cutoff) {
		start++
	}
	if start == 0 {
		return events
	}
	return append([]models.DiagnosticsEvent(nil), events[start:]...)
}

// GetMergedEvents returns both sequences merged into one, stably
// sorted by timestamp (spec.md §4.5, §5 "local and remote sequences
// are only loosely ordered; getMergedEvents imposes a stable global
// order by timestamp").
func (l *Log) GetMergedEvents() []models.DiagnosticsEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]models.DiagnosticsEvent, 0, len(l.local)+len(l.remote))
	merged = append(merged, l.local...)
	merged = append(merged, l.remote...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// ExportMergedJSON returns the export shape from spec.md §4.5:
// {exportedAt, localCount, remoteCount, events}.
func (l *Log) ExportMergedJSON() models.MergedExport {
	l.mu.Lock()
	localCount := len(l.local)
	remoteCount := len(l.remote)
	l.mu.Unlock()

	return models.MergedExport{
		ExportedAt:  l.now(),
		LocalCount:  localCount,
		RemoteCount: remoteCount,
		Events:      l.GetMergedEvents(),
	}
}
