// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// snapshots, batches, prefix scans and minimal metrics hooks. It is the
// storage layer under the persistent local table backend.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("tbl/deals/row/0000000002"), rowJSON, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	snap := db.NewSnapshot()
//	defer snap.Close()
//	_ = pebblestore.ScanPrefix(snap, []byte("tbl/deals/row/"), visit)
package pebblestore
