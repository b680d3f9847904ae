package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testDataset(hash string, rows int) *Dataset {
	return &Dataset{
		ContentHash: hash,
		FileName:    hash + ".xlsx",
		SizeBytes:   1024,
		RowCount:    rows,
		Payload:     []byte(`{"columns":[]}`),
	}
}

func TestOpenMemory(t *testing.T) {
	db, err := Open(MemoryPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SaveDataset(ctx, testDataset("abc", 3)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	// A second query must see the same in-memory database.
	got, err := db.GetDataset(ctx, "abc")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got == nil {
		t.Fatal("expected dataset in memory database")
	}
}

func TestSaveAndGetDataset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.SaveDataset(ctx, testDataset("abc", 3)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	got, err := db.GetDataset(ctx, "abc")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got == nil {
		t.Fatal("expected dataset, got nil")
	}
	if got.FileName != "abc.xlsx" || got.RowCount != 3 || got.SizeBytes != 1024 {
		t.Errorf("unexpected dataset: %+v", got)
	}
	if string(got.Payload) != `{"columns":[]}` {
		t.Errorf("unexpected payload %q", got.Payload)
	}
	if got.LoadedAt == nil {
		t.Error("expected loaded_at to be set")
	}
}

func TestSaveDatasetReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.SaveDataset(ctx, testDataset("abc", 3))
	again := testDataset("abc", 5)
	again.FileName = "renamed.xlsx"
	if err := db.SaveDataset(ctx, again); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	got, _ := db.GetDataset(ctx, "abc")
	if got.FileName != "renamed.xlsx" || got.RowCount != 5 {
		t.Errorf("expected replaced dataset, got %+v", got)
	}
}

func TestGetDatasetMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetDataset(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown hash")
	}
}

func TestAttachSessionKeepsOneDataset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.SaveDataset(ctx, testDataset("first", 1))
	db.SaveDataset(ctx, testDataset("second", 2))

	if err := db.AttachSession(ctx, "s1", "first"); err != nil {
		t.Fatalf("AttachSession: %v", err)
	}
	if err := db.AttachSession(ctx, "s1", "second"); err != nil {
		t.Fatalf("AttachSession: %v", err)
	}

	got, err := db.GetSessionDataset(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionDataset: %v", err)
	}
	if got == nil || got.ContentHash != "second" {
		t.Fatalf("expected session on 'second', got %+v", got)
	}

	stats, _ := db.GetStats(ctx)
	if stats.Sessions != 1 {
		t.Errorf("expected 1 session, got %d", stats.Sessions)
	}
}

func TestGetSessionDatasetUnknown(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetSessionDataset(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown session")
	}
}

func TestPruneDatasets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.SaveDataset(ctx, testDataset("kept", 1))
	db.SaveDataset(ctx, testDataset("orphan", 2))
	db.AttachSession(ctx, "s1", "kept")

	n, err := db.PruneDatasets(ctx)
	if err != nil {
		t.Fatalf("PruneDatasets: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if got, _ := db.GetDataset(ctx, "orphan"); got != nil {
		t.Error("expected orphan dataset to be pruned")
	}
	if got, _ := db.GetDataset(ctx, "kept"); got == nil {
		t.Error("expected attached dataset to survive")
	}
}

func TestDetachSession(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.SaveDataset(ctx, testDataset("abc", 1))
	db.AttachSession(ctx, "s1", "abc")

	if err := db.DetachSession(ctx, "s1"); err != nil {
		t.Fatalf("DetachSession: %v", err)
	}
	if got, _ := db.GetSessionDataset(ctx, "s1"); got != nil {
		t.Error("expected no dataset after detach")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.SaveDataset(ctx, testDataset("a", 3))
	db.SaveDataset(ctx, testDataset("b", 4))
	db.AttachSession(ctx, "s1", "a")

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Datasets != 2 || stats.TotalRows != 7 || stats.Sessions != 1 || stats.Bytes != 2048 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStoreSession(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.SaveDataset(ctx, testDataset("orphan", 2))

	pruned, err := db.StoreSession(ctx, "s1", testDataset("abc", 3))
	if err != nil {
		t.Fatalf("StoreSession: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}
	got, err := db.GetSessionDataset(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionDataset: %v", err)
	}
	if got == nil || got.ContentHash != "abc" {
		t.Fatalf("expected session on 'abc', got %+v", got)
	}
}

func TestStoreSessionConcurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const sessions = 30
	errs := make([]error, sessions)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.StoreSession(ctx, fmt.Sprintf("s%d", i), testDataset(fmt.Sprintf("h%d", i), 1))
		}(i)
	}
	wg.Wait()

	for i := range sessions {
		if errs[i] != nil {
			t.Fatalf("StoreSession s%d: %v", i, errs[i])
		}
		got, err := db.GetSessionDataset(ctx, fmt.Sprintf("s%d", i))
		if err != nil {
			t.Fatalf("GetSessionDataset s%d: %v", i, err)
		}
		if got == nil {
			t.Errorf("session s%d lost its dataset", i)
		}
	}
	stats, _ := db.GetStats(ctx)
	if stats.Datasets != sessions {
		t.Errorf("expected %d datasets, got %d", sessions, stats.Datasets)
	}
}
