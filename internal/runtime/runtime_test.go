package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/rowlease/internal/config"
	"github.com/rzbill/rowlease/internal/item"
	"github.com/rzbill/rowlease/internal/lease"
	"github.com/rzbill/rowlease/internal/schema"
	"github.com/rzbill/rowlease/internal/table"
	"github.com/rzbill/rowlease/internal/table/memtable"
	"github.com/rzbill/rowlease/internal/writer"
)

func pebbleConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Claim.WorkerID = "w1"
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(context.Background(), Options{Config: pebbleConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if rt.DB() == nil {
		t.Fatalf("pebble backend should expose its db")
	}
	// A fresh pebble table has no header row yet.
	if err := rt.CheckHealth(context.Background()); !errors.Is(err, table.ErrRowOutOfRange) {
		t.Fatalf("health on empty table: %v", err)
	}
	if err := rt.InitHeader(context.Background(), []string{"deal_id", "status", "processing_lock", "locked_by"}); err != nil {
		t.Fatalf("init header: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestPebbleClaimRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := lease.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	cfg := pebbleConfig(t)
	cfg.Claim.Strategy = "cas"
	rt, err := Open(ctx, Options{Config: cfg, Clock: clock})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	if err := rt.InitHeader(ctx, []string{"deal_id", "status", "processing_lock", "locked_by"}); err != nil {
		t.Fatalf("init header: %v", err)
	}
	for _, id := range []string{"d-1", "d-2"} {
		if _, err := rt.Append(ctx, map[string]string{"deal_id": id, "status": "READY", "ignored": "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	w, err := rt.Coordinator().ClaimFirstAvailable(ctx, rt.ClaimRequest(item.StatusReady, item.StatusPosting))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if w == nil || w.Row != 2 || w.LockedBy != "w1" || w.Get("deal_id") != "d-1" {
		t.Fatalf("unexpected claim: %+v", w)
	}
	if _, err := rt.Coordinator().Complete(ctx, w.Row, item.StatusPosted, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	found, err := rt.Coordinator().Find(ctx, "deal_id", "d-1")
	if err != nil || found == nil || found.Status != item.StatusPosted || found.Claimed() {
		t.Fatalf("find after complete: %+v, %v", found, err)
	}
}

func TestInitHeaderRejectsMissingLeaseFields(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = cfgpkg.BackendMemory
	rt, err := Open(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = rt.InitHeader(context.Background(), []string{"status"})
	var serr *schema.Error
	if !errors.As(err, &serr) || len(serr.Missing) != 2 {
		t.Fatalf("expected schema error naming both lease fields, got %v", err)
	}
}

// tableOnly hides every method beyond table.Table.
type tableOnly struct{ table.Table }

func TestCASNeedsSwapper(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = cfgpkg.BackendMemory
	cfg.Claim.Strategy = "cas"
	_, err := Open(context.Background(), Options{Config: cfg, Table: tableOnly{memtable.New(nil)}})
	if !errors.Is(err, writer.ErrNoSwap) {
		t.Fatalf("expected ErrNoSwap, got %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = "redis"
	if _, err := Open(context.Background(), Options{Config: cfg}); !errors.Is(err, cfgpkg.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	cfg = cfgpkg.Default()
	cfg.Backend = cfgpkg.BackendMemory
	cfg.Claim.Strategy = "pessimistic"
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatalf("expected strategy error")
	}
}

func TestRegistersConfiguredStatuses(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = cfgpkg.BackendMemory
	cfg.Claim.Statuses = []string{"QUEUED_FOR_REVIEW"}
	if _, err := Open(context.Background(), Options{Config: cfg}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !item.Known("QUEUED_FOR_REVIEW") {
		t.Fatalf("configured status should be known")
	}
}
