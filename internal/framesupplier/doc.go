// Package framesupplier fans the latest camera frame out to any number of
// viewer sessions without ever queueing.
//
// Topology:
//
//	capture goroutine ──Publish──▶ inbox (1 slot) ──distributionLoop──▶ session slots (1 slot each)
//
// Both the inbox and every session slot are single-slot mailboxes guarded by a
// sync.Cond: a new frame overwrites an unconsumed one and the overwrite is
// counted as a drop. A slow session therefore only ever sees stale frames
// skipped, never a growing backlog, and it cannot slow the capture loop or any
// other session.
//
// A session reads through the function returned by Subscribe. The function
// blocks until a frame newer than the last one it returned is available, and
// returns nil once the session is unsubscribed or the supplier is stopped.
// Frames reach a given reader in strictly increasing Seq order.
//
// Frames are shared by reference. Nobody may modify Frame.Data after Publish.
package framesupplier
