package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestReportStore(t *testing.T, ttl time.Duration) (*ReportStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportStore(client, ttl), mr
}

func TestReportStoreAccumulates(t *testing.T) {
	store, _ := newTestReportStore(t, 0)
	ctx := context.Background()

	if err := store.Record(ctx, "org-1", "sess-1", []Signal{
		{Dimension: DimBudget},
		{Dimension: DimTimeline},
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := store.Record(ctx, "org-1", "sess-1", []Signal{
		{Dimension: DimBudget}, // duplicate across turns
		{Dimension: DimAuthority},
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	observed, err := store.Observed(ctx, "org-1", "sess-1")
	if err != nil {
		t.Fatalf("Observed returned error: %v", err)
	}
	want := []Dimension{DimBudget, DimAuthority, DimTimeline}
	if !reflect.DeepEqual(observed, want) {
		t.Fatalf("expected %v, got %v", want, observed)
	}

	missing, err := store.Missing(ctx, "org-1", "sess-1")
	if err != nil {
		t.Fatalf("Missing returned error: %v", err)
	}
	if !reflect.DeepEqual(missing, []Dimension{DimNeed, DimSegment}) {
		t.Fatalf("unexpected missing dimensions: %v", missing)
	}
}

func TestReportStoreEmptySignalsIsNoop(t *testing.T) {
	store, mr := newTestReportStore(t, 0)

	if err := store.Record(context.Background(), "org-1", "sess-1", nil); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if mr.Exists("qual:report:org-1:sess-1") {
		t.Fatal("no key should be created for empty signal sets")
	}
}

func TestReportStoreMissingSessionReportsAll(t *testing.T) {
	store, _ := newTestReportStore(t, 0)

	missing, err := store.Missing(context.Background(), "org-1", "never-seen")
	if err != nil {
		t.Fatalf("Missing returned error: %v", err)
	}
	if !reflect.DeepEqual(missing, AllDimensions) {
		t.Fatalf("expected every dimension missing, got %v", missing)
	}
}

func TestReportStoreAppliesTTL(t *testing.T) {
	store, mr := newTestReportStore(t, time.Hour)

	if err := store.Record(context.Background(), "org-1", "sess-1", []Signal{{Dimension: DimNeed}}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if ttl := mr.TTL("qual:report:org-1:sess-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}
