package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/basinlabs/upstairs/internal/testutil"
	"github.com/basinlabs/upstairs/internal/types"
)

func TestRecordAndReadRetiredJobs(t *testing.T) {
	dir := testutil.TempDirInMemory(t)
	store, err := Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordRetiredJob(ctx, 1000, 0, types.KindFlush, true, nil); err != nil {
		t.Fatalf("RecordRetiredJob: %v", err)
	}

	records, err := store.RecentRetiredJobs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRetiredJobs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].JobID != 1000 {
		t.Errorf("JobID = %d, want 1000", records[0].JobID)
	}
	if !records[0].Acked {
		t.Errorf("Acked = false, want true")
	}
}
