package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/dialect"
	"github.com/roach88/bowtie/internal/protocol"
)

// Connectable launches fresh instances of an implementation.
// connectable.Parse returns values satisfying it.
type Connectable interface {
	Name() string
	Connect(ctx context.Context) (channel.Transport, error)
}

// State is where a harness is in its lifecycle.
type State int

const (
	NotStarted State = iota
	Starting
	Ready
	Running
	Stopped
	Crashed
	BackingOff
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Crashed:
		return "crashed"
	case BackingOff:
		return "backing off"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Defaults for Config.
const (
	DefaultReadRetries   = 3
	DefaultRestartBudget = 20
)

// Config tunes a harness.
type Config struct {
	// ProtocolVersion is sent in the start command and must be echoed back.
	ProtocolVersion int

	// ReadTimeout bounds each individual read.
	ReadTimeout time.Duration

	// ReadRetries is how many timed-out reads a run request tolerates.
	ReadRetries int

	// RestartBudget is how many times a crashed implementation is restarted.
	RestartBudget int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion: protocol.CurrentVersion,
		ReadTimeout:     channel.DefaultReadTimeout,
		ReadRetries:     DefaultReadRetries,
		RestartBudget:   DefaultRestartBudget,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProtocolVersion <= 0 {
		c.ProtocolVersion = d.ProtocolVersion
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ReadRetries <= 0 {
		c.ReadRetries = d.ReadRetries
	}
	if c.RestartBudget < 0 {
		c.RestartBudget = 0
	}
	return c
}

// StartError means an implementation could not be brought up.
type StartError struct {
	Name   string
	Reason string
	Stderr []byte
	Err    error
}

func (e *StartError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed to start: %s", e.Name, e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Stderr) > 0 {
		fmt.Fprintf(&b, " (stderr: %q)", strings.TrimSpace(string(e.Stderr)))
	}
	return b.String()
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsStartError reports whether err is a StartError.
func IsStartError(err error) bool {
	var startErr *StartError
	return errors.As(err, &startErr)
}

// UnsupportedDialectError means the implementation does not declare the
// dialect the run targets.
type UnsupportedDialectError struct {
	Name      string
	Dialect   dialect.Dialect
	Supported []string
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("%s does not support %s (supports %s)", e.Name, e.Dialect.PrettyName, strings.Join(e.Supported, ", "))
}

// ErrBackingOff is returned by restart attempts once the budget is spent.
var ErrBackingOff = errors.New("restart budget exhausted")
