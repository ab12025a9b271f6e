package rpcserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/basinlabs/upstairs/internal/types"
	"github.com/basinlabs/upstairs/internal/upstairs"
)

func startTestServer(t *testing.T) (*Client, func()) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "daemon.sock")

	co := upstairs.NewCoordinator([types.NumClients]string{"a", "b", "c"}, 4, 16)
	guest := upstairs.NewGuestBridge(co)
	srv := New(sockPath, "test-upstairs-id", guest, co, nil)

	go func() {
		_ = srv.Start(context.Background())
	}()
	<-srv.WaitReady()

	client, err := Dial(sockPath, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return client, func() {
		_ = client.Close()
		_ = srv.Stop()
	}
}

func TestWriteThenShowWork(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	if err := client.Call("write", WriteArgs{OffsetBlocks: 0, Data: []byte("hello")}, nil); err != nil {
		t.Fatalf("write call: %v", err)
	}

	var entries []upstairs.ShowWorkEntry
	if err := client.Call("show_work", nil, &entries); err != nil {
		t.Fatalf("show_work call: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("show_work returned %d entries, want 1", len(entries))
	}
	if entries[0].Kind != types.KindWrite {
		t.Errorf("entry kind = %v, want Write", entries[0].Kind)
	}
}

func TestQueryUpstairsUUID(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	var out struct {
		UpstairsID string `json:"upstairs_id"`
	}
	if err := client.Call("query_upstairs_uuid", nil, &out); err != nil {
		t.Fatalf("query_upstairs_uuid call: %v", err)
	}
	if out.UpstairsID != "test-upstairs-id" {
		t.Errorf("UpstairsID = %q, want %q", out.UpstairsID, "test-upstairs-id")
	}
}

func TestUnknownVerb(t *testing.T) {
	client, cleanup := startTestServer(t)
	defer cleanup()

	err := client.Call("bogus_verb", nil, nil)
	if err == nil {
		t.Fatalf("expected error for unknown verb")
	}
}
