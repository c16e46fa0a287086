package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBadgerStoreInMemory(t *testing.T) {
	store := NewBadgerStore(BadgerConfig{InMemory: true})
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestBadgerStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	store := NewBadgerStore(BadgerConfig{Path: dir, SyncWrites: true})
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("persisted", fixedTime())); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewBadgerStore(BadgerConfig{Path: dir})
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	run, ok, err := reopened.GetRun(ctx, "persisted")
	if err != nil || !ok {
		t.Fatalf("get run after reopen: ok=%t err=%v", ok, err)
	}
	if run.Request.Seed != 983 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestBadgerStoreRequiresPath(t *testing.T) {
	store := NewBadgerStore(BadgerConfig{})
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
	if _, _, err := store.GetRun(context.Background(), "x"); err == nil {
		t.Fatal("expected uninitialized error")
	}
}
