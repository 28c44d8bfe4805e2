// Package engine orchestrates a run: it starts every implementation, feeds
// each case to all of them, and streams what comes back to a Reporter.
//
// # Run lifecycle
//
//  1. Options are validated before anything is launched (fail-fast and
//     max-fail conflict, negative thresholds).
//  2. Harnesses start in parallel. Those that fail are logged, recorded in
//     the summary and excluded. If none survive, or RequireAllStarted is set
//     and any failed, the run aborts with a CONFIG error.
//  3. Cases are read from the input in order. Filtered cases are skipped
//     without consuming a Seq. Each dispatched case gets the next Seq from
//     Clock, starting at 1.
//  4. Every live harness receives the case concurrently, with expected
//     results stripped unless ShowExpected is set. Results reach the
//     Reporter in completion order, each tagged with its Seq.
//  5. After every case the StopPolicy is consulted. If every harness is
//     backing off the run aborts with a CONFIG error.
//  6. A summary is reported. A run that dispatched nothing is a NO_INPUT
//     error.
//
// # Ordering
//
// All results for Seq N are reported before Seq N+1 is dispatched. Within
// one Seq, results from different implementations interleave freely.
//
// # Ownership
//
// Each harness is touched by exactly one goroutine at a time: its own
// startup goroutine, then its dispatch goroutine for one case, then the
// run loop once that case is done. Harnesses are always stopped and
// removed when Run returns, whatever the exit path.
package engine
