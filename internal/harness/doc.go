// Package harness drives one implementation under test through the bowtie
// protocol.
//
// # Lifecycle
//
//	NotStarted → Starting → Ready ⇄ Running → Stopped
//	                 any state → Crashed → Starting (restart)
//	                 Crashed, budget exhausted → BackingOff (permanent)
//
// A Harness is owned by a single goroutine at a time: the engine starts
// harnesses in parallel, then hands each one case at a time. Nothing in
// this package takes a lock.
//
// # Failure handling
//
// Failures fall into two groups. Startup failures (*StartError,
// *UnsupportedDialectError) are returned from Start and exclude the harness
// from the run. Everything that goes wrong while running a case is turned
// into a result.AnyCaseResult instead:
//
//   - read timeouts are retried; exhausting the retries yields result.Empty
//   - a closed stream, stderr output or unparseable JSON crashes the
//     harness, yields an uncaught result.CaseErrored and triggers a restart
//   - a response naming the wrong seq, or carrying the wrong number of
//     results, yields an uncaught result.CaseErrored without a restart
//
// After RestartBudget restarts the harness stops restarting and answers
// every further case with result.BackingOff without any I/O.
//
// # Usage
//
//	h := harness.New(conn, harness.DefaultConfig(), logger)
//	defer h.Close()
//	if err := h.Start(ctx, dialect.Latest()); err != nil {
//	    return err
//	}
//	r := h.RunCase(ctx, cases.SeqCase{Seq: 1, Case: tc})
package harness
