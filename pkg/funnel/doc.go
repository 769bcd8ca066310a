// Package funnel tracks signup conversion as a per-session state machine.
//
// Sessions move through Viewed, Started, MethodChosen and Submitted in
// order, ending in exactly one of Completed, Failed or Abandoned. The first
// terminal signal wins; anything after it is a no-op. Recording is
// fire-and-forget and never returns an error to the caller.
package funnel
