// Package claim implements lease-based row claiming over a shared table.
//
// A worker asks the Coordinator for the first row in a wanted status whose
// lease is empty or stale. The Coordinator stamps the row with the current
// time, the worker id and an in-flight status, then returns a fresh
// snapshot of it. Workers that crash leave their lease behind; once it
// outlives the maximum lease age the row becomes claimable again.
//
// With the default Optimistic strategy the scan and the write are separate
// round-trips, so two workers scanning at the same moment can both claim
// the same row and the later write wins. CompareAndSwap closes that window
// on backends that implement table.Swapper.
package claim
