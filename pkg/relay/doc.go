// Package relay implements the real-time transcription relay: a registry of live
// sessions, one client stream bridged to one upstream transcription connection per
// session, and the finalizer that turns the accumulated transcript into feedback.
//
// Invariants:
// - At most one session record exists per id; Remove hands a record to one caller only.
// - At most one listener runs per session; a new stream cancels and awaits the old one
//   before it dials upstream.
// - Only the session's listener appends to its transcript, in upstream arrival order.
// - Every cancel-and-await is bounded by the drain timeout.
//
// Usage:
//
//	mgr, _ := relay.New(relay.Config{Dialer: d, Analyzer: a, Synthesizer: s})
//	id, _ := mgr.CreateSession(ctx, "3")
//	_ = mgr.OpenStream(ctx, id, frames)
//	res, _ := mgr.Finalize(ctx, relay.FinalizeRequest{SessionID: id, Image: img})
//	_ = res
package relay
