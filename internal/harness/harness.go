package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/protocol"
	"github.com/roach88/bowtie/internal/result"
)

// ImplicitDialectWarning is logged when an implementation does not confirm
// the dialect it was told to assume.
const ImplicitDialectWarning = "implicit dialect not acknowledged"

var errInvalidJSON = errors.New("response is not valid JSON")

// Harness owns one implementation under test for the duration of a run.
type Harness struct {
	conn   Connectable
	cfg    Config
	logger *slog.Logger

	dialect    dialect.Dialect
	ch         *channel.Channel
	state      State
	impl       protocol.Implementation
	restarts   int
	attempts   int
	violations int
}

// New prepares a harness; nothing is launched until Start.
// A nil logger discards output.
func New(conn Connectable, cfg Config, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{
		conn:   conn,
		cfg:    cfg.withDefaults(),
		logger: logger.With("implementation", conn.Name()),
	}
}

// Name is the implementation's "<language>-<name>" id once started, and the
// connectable's name before that.
func (h *Harness) Name() string {
	if h.impl.Name != "" {
		return h.impl.ID()
	}
	return h.conn.Name()
}

// Implementation returns the metadata reported at startup.
func (h *Harness) Implementation() protocol.Implementation {
	return h.impl
}

// State returns the current lifecycle state.
func (h *Harness) State() State {
	return h.state
}

// StartAttempts counts every time an instance was launched, restarts included.
func (h *Harness) StartAttempts() int {
	return h.attempts
}

// Violations counts responses that broke the protocol without crashing
// the implementation: wrong seq, wrong result count, undecodable results.
func (h *Harness) Violations() int {
	return h.violations
}

// Restarts counts restarts after crashes.
func (h *Harness) Restarts() int {
	return h.restarts
}

// Start launches the implementation, performs the handshake and tells it
// which dialect to assume.
func (h *Harness) Start(ctx context.Context, d dialect.Dialect) error {
	h.dialect = d
	h.state = Starting

	if err := h.launch(ctx); err != nil {
		h.state = Stopped
		return err
	}

	if !d.Supports(h.impl.Dialects) {
		h.state = Stopped
		h.Close()
		return &UnsupportedDialectError{Name: h.Name(), Dialect: d, Supported: h.impl.Dialects}
	}

	if err := h.negotiate(ctx); err != nil {
		h.state = Stopped
		h.Close()
		return &StartError{Name: h.Name(), Reason: "dialect negotiation failed", Err: err}
	}

	h.state = Ready
	h.logger.Info("implementation started",
		"id", h.impl.ID(),
		"version", h.impl.Version,
		"dialect", d.ShortName,
	)
	return nil
}

// Describe launches the implementation just long enough to read its
// metadata, then stops it. No dialect is negotiated.
func (h *Harness) Describe(ctx context.Context) (protocol.Implementation, error) {
	h.state = Starting
	if err := h.launch(ctx); err != nil {
		h.state = Stopped
		return protocol.Implementation{}, err
	}
	h.state = Ready
	defer h.Close()
	h.Stop(ctx)
	return h.impl, nil
}

// launch connects a fresh instance and performs the start handshake. Any
// stderr output during startup is fatal even when the handshake succeeded.
func (h *Harness) launch(ctx context.Context) error {
	h.attempts++

	transport, err := h.conn.Connect(ctx)
	if err != nil {
		return &StartError{Name: h.Name(), Reason: "could not launch", Err: err}
	}
	ch := channel.New(transport, h.cfg.ReadTimeout)

	fail := func(reason string, err error, stderr []byte) error {
		if len(stderr) == 0 {
			stderr = ch.TakeStderr()
		}
		if closeErr := ch.Close(); closeErr != nil {
			h.logger.Warn("failed to remove implementation", "error", closeErr)
		}
		return &StartError{Name: h.Name(), Reason: reason, Err: err, Stderr: stderr}
	}

	if err := ch.Send(protocol.NewStart(h.cfg.ProtocolVersion)); err != nil {
		return fail("could not send start", err, nil)
	}

	var started protocol.Started
	if _, err := ch.ReceiveJSON(ctx, &started); err != nil {
		var stderrErr *channel.GotStderrError
		if errors.As(err, &stderrErr) {
			return fail("wrote to stderr", nil, stderrErr.Stderr)
		}
		return fail("no valid handshake", err, nil)
	}
	if stderr := ch.TakeStderr(); len(stderr) > 0 {
		return fail("wrote to stderr", nil, stderr)
	}
	if !started.Ready {
		return fail("did not report ready", nil, nil)
	}
	if started.Version != h.cfg.ProtocolVersion {
		return fail(fmt.Sprintf("speaks protocol version %d, not %d", started.Version, h.cfg.ProtocolVersion), nil, nil)
	}
	if err := started.Implementation.Validate(); err != nil {
		return fail("bad metadata", err, nil)
	}

	h.ch = ch
	h.impl = started.Implementation
	return nil
}

func (h *Harness) negotiate(ctx context.Context) error {
	if err := h.ch.Send(protocol.NewDialect(h.dialect.URI)); err != nil {
		return err
	}
	var ack protocol.DialectAck
	if _, err := h.ch.ReceiveJSON(ctx, &ack); err != nil {
		return err
	}
	if !ack.Acknowledged() {
		h.logger.Warn(ImplicitDialectWarning, "dialect", h.dialect.URI)
	}
	return nil
}

// RunCase sends one case and classifies the answer. It never returns an
// error: every failure is expressed as a result.
func (h *Harness) RunCase(ctx context.Context, sc cases.SeqCase) result.AnyCaseResult {
	switch h.state {
	case BackingOff:
		return result.BackingOff()
	case Crashed:
		if err := h.restart(ctx); err != nil {
			if h.state == BackingOff {
				return result.BackingOff()
			}
			return result.Uncaught("failed to restart", map[string]any{"error": err.Error()})
		}
	case Ready:
	default:
		return result.Uncaught(fmt.Sprintf("implementation is %s", h.state), nil)
	}

	h.state = Running
	r := h.exchange(ctx, sc)
	if h.state == Running {
		h.state = Ready
	}
	return r
}

func (h *Harness) exchange(ctx context.Context, sc cases.SeqCase) result.AnyCaseResult {
	if err := h.ch.Send(protocol.NewRun(sc.Seq, sc.Case)); err != nil {
		return h.crash(ctx, sc.Seq, err)
	}

	attempt := 1
	for {
		line, err := h.ch.Receive(ctx)
		switch {
		case err == nil:
			if seq, seqErr := protocol.ResponseSeq(line); seqErr == nil && seq < sc.Seq {
				// A reply to a case that already timed out.
				h.logger.Debug("dropping late response", "seq", sc.Seq, "late_seq", seq)
				continue
			}
			return h.interpret(ctx, sc, line)
		case errors.Is(err, channel.ErrReadTimeout):
			if attempt < h.cfg.ReadRetries {
				h.logger.Debug("read timed out, retrying", "seq", sc.Seq, "attempt", attempt)
				attempt++
				continue
			}
			h.logger.Warn("no response", "seq", sc.Seq, "attempts", attempt)
			return result.Empty{}
		case ctx.Err() != nil:
			return result.Uncaught("interrupted", map[string]any{"error": ctx.Err().Error()})
		default:
			return h.crash(ctx, sc.Seq, err)
		}
	}
}

func (h *Harness) interpret(ctx context.Context, sc cases.SeqCase, line []byte) result.AnyCaseResult {
	if !json.Valid(line) {
		return h.crash(ctx, sc.Seq, &channel.BadFramingError{Line: line, Err: errInvalidJSON})
	}

	seq, err := protocol.ResponseSeq(line)
	if err != nil {
		h.logger.Error("response has no usable seq",
			"seq", sc.Seq,
			"error", err,
			"response", string(line),
		)
		h.violations++
		return result.Uncaught("invalid response", map[string]any{
			"error":    err.Error(),
			"response": string(line),
		})
	}
	if seq != sc.Seq {
		h.logger.Error(result.MismatchedSeqMessage,
			"expected", sc.Seq,
			"got", seq,
			"response", string(line),
		)
		h.violations++
		return result.Uncaught(result.MismatchedSeqMessage, map[string]any{
			"expected": int64(sc.Seq),
			"got":      int64(seq),
			"response": string(line),
		})
	}

	r, err := result.Decode(line)
	if err != nil {
		h.logger.Error("undecodable response", "seq", sc.Seq, "error", err, "response", string(line))
		h.violations++
		return result.Uncaught("invalid response", map[string]any{
			"error":    err.Error(),
			"response": string(line),
		})
	}

	if cr, ok := r.(result.CaseResult); ok && len(cr.Results) != len(sc.Case.Tests) {
		h.logger.Error("wrong number of results",
			"seq", sc.Seq,
			"expected", len(sc.Case.Tests),
			"got", len(cr.Results),
			"response", string(line),
		)
		h.violations++
		return result.Uncaught("wrong number of results", map[string]any{
			"expected": len(sc.Case.Tests),
			"got":      len(cr.Results),
			"response": string(line),
		})
	}
	return r
}

// crash records a transport failure for seq and restarts eagerly so the
// next case finds a fresh instance.
func (h *Harness) crash(ctx context.Context, seq cases.Seq, err error) result.AnyCaseResult {
	h.state = Crashed
	h.logger.Error("implementation crashed", "seq", seq, "error", err)

	r := crashResult(err)
	if restartErr := h.restart(ctx); restartErr != nil && !errors.Is(restartErr, ErrBackingOff) {
		h.logger.Error("restart failed", "error", restartErr)
	}
	return r
}

func crashResult(err error) result.CaseErrored {
	var stderrErr *channel.GotStderrError
	if errors.As(err, &stderrErr) {
		return result.Uncaught("implementation wrote to stderr", map[string]any{
			"stderr": string(stderrErr.Stderr),
		})
	}
	var framing *channel.BadFramingError
	if errors.As(err, &framing) {
		return result.Uncaught("invalid JSON from implementation", map[string]any{
			"error":    framing.Err.Error(),
			"response": string(framing.Line),
		})
	}
	return result.Uncaught("implementation crashed", map[string]any{"error": err.Error()})
}

// restart replaces a crashed instance, or gives up for good once the
// restart budget is spent.
func (h *Harness) restart(ctx context.Context) error {
	h.Close()

	if h.restarts >= h.cfg.RestartBudget {
		if h.state != BackingOff {
			h.logger.Warn("restart budget exhausted, backing off",
				"restarts", h.restarts,
				"budget", h.cfg.RestartBudget,
			)
		}
		h.state = BackingOff
		return ErrBackingOff
	}
	h.restarts++
	h.state = Starting

	if err := h.launch(ctx); err != nil {
		h.state = Crashed
		return err
	}
	if err := h.negotiate(ctx); err != nil {
		h.Close()
		h.state = Crashed
		return err
	}
	h.state = Ready
	h.logger.Info("implementation restarted", "restarts", h.restarts)
	return nil
}

// Stop asks the implementation to exit. Errors are ignored since the
// instance is removed right after.
func (h *Harness) Stop(ctx context.Context) {
	if h.ch != nil && h.state == Ready {
		if err := h.ch.Send(protocol.NewStop()); err == nil {
			_, _ = h.ch.Receive(ctx)
		}
	}
	if h.state != BackingOff {
		h.state = Stopped
	}
}

// Close forcibly removes the running instance, if any. Removal failures
// are logged and otherwise ignored.
func (h *Harness) Close() {
	if h.ch == nil {
		return
	}
	if err := h.ch.Close(); err != nil {
		h.logger.Warn("failed to remove implementation", "error", err)
	}
	h.ch = nil
}
