package diagnostics

import (
	"testing"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

func TestGetMergedEventsOrdersByTimestamp(t *testing.T) {
	log := New()
	base := time.Now()

	log.AppendLocal(models.DiagnosticsEvent{Timestamp: base.Add(20 * time.Second), EventType: models.EventSample})
	log.AppendRemote(models.DiagnosticsEvent{Timestamp: base.Add(10 * time.Second), EventType: models.EventSample})

	merged := log.GetMergedEvents()
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged events, got %d", len(merged))
	}
	if !merged[0].Timestamp.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("expected remote@t+10 first, got %v", merged[0].Timestamp)
	}
	if !merged[1].Timestamp.Equal(base.Add(20 * time.Second)) {
		t.Fatalf("expected local@t+20 second, got %v", merged[1].Timestamp)
	}
}

func TestPruneDropsEntriesOlderThanRetention(t *testing.T) {
	log := New()
	fakeNow := time.Now()
	log.now = func() time.Time { return fakeNow }

	log.AppendLocal(models.DiagnosticsEvent{Timestamp: fakeNow.Add(-20 * time.Minute)})
	log.AppendLocal(models.DiagnosticsEvent{Timestamp: fakeNow.Add(-1 * time.Minute)})

	merged := log.GetMergedEvents()
	if len(merged) != 1 {
		t.Fatalf("expected the 20-minute-old entry pruned, got %d events", len(merged))
	}
	if merged[0].Timestamp.Before(fakeNow.Add(-models.DiagnosticsRetention)) {
		t.Fatal("surviving event should be within the retention window")
	}
}

func TestExportMergedJSONCounts(t *testing.T) {
	log := New()
	now := time.Now()
	log.AppendLocal(models.DiagnosticsEvent{Timestamp: now})
	log.AppendLocal(models.DiagnosticsEvent{Timestamp: now})
	log.AppendRemote(models.DiagnosticsEvent{Timestamp: now})

	export := log.ExportMergedJSON()
	if export.LocalCount != 2 || export.RemoteCount != 1 {
		t.Fatalf("unexpected counts: local=%d remote=%d", export.LocalCount, export.RemoteCount)
	}
	if len(export.Events) != 3 {
		t.Fatalf("expected 3 merged events, got %d", len(export.Events))
	}
}
