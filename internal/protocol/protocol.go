// Package protocol defines the newline-delimited JSON messages exchanged
// with implementations under test.
//
// Requests carry a "cmd" discriminator:
//
//	{"cmd": "start", "version": 1}
//	{"cmd": "dialect", "dialect": "<uri>"}
//	{"cmd": "run", "seq": 1, "case": {...}}
//	{"cmd": "stop"}
//
// Responses are decoded into the structs below; run responses are
// classified by the result package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/bowtie/internal/cases"
)

// CurrentVersion is the protocol version bowtie speaks.
const CurrentVersion = 1

// Command names.
const (
	CmdStart   = "start"
	CmdDialect = "dialect"
	CmdRun     = "run"
	CmdStop    = "stop"
)

// Start begins the handshake.
type Start struct {
	Cmd     string `json:"cmd"`
	Version int    `json:"version"`
}

// NewStart builds a start command for version.
func NewStart(version int) Start {
	return Start{Cmd: CmdStart, Version: version}
}

// Dialect tells the implementation which dialect to assume when a schema
// has no $schema keyword.
type Dialect struct {
	Cmd     string `json:"cmd"`
	Dialect string `json:"dialect"`
}

// NewDialect builds a dialect command.
func NewDialect(uri string) Dialect {
	return Dialect{Cmd: CmdDialect, Dialect: uri}
}

// Run asks for one case to be evaluated.
type Run struct {
	Cmd  string         `json:"cmd"`
	Seq  cases.Seq      `json:"seq"`
	Case cases.TestCase `json:"case"`
}

// NewRun builds a run command.
func NewRun(seq cases.Seq, c cases.TestCase) Run {
	return Run{Cmd: CmdRun, Seq: seq, Case: c}
}

// Stop asks the implementation to exit.
type Stop struct {
	Cmd string `json:"cmd"`
}

// NewStop builds a stop command.
func NewStop() Stop {
	return Stop{Cmd: CmdStop}
}

// Link is an extra reference an implementation advertises.
type Link struct {
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Implementation is the metadata an implementation reports at startup.
type Implementation struct {
	Name            string   `json:"name"`
	Language        string   `json:"language"`
	Version         string   `json:"version,omitempty"`
	Homepage        string   `json:"homepage,omitempty"`
	Issues          string   `json:"issues,omitempty"`
	Source          string   `json:"source,omitempty"`
	Dialects        []string `json:"dialects"`
	LanguageVersion string   `json:"language_version,omitempty"`
	OS              string   `json:"os,omitempty"`
	OSVersion       string   `json:"os_version,omitempty"`
	Links           []Link   `json:"links,omitempty"`
}

// ID is the conventional "<language>-<name>" identifier.
func (i Implementation) ID() string {
	return strings.ToLower(i.Language) + "-" + i.Name
}

// Validate checks the fields bowtie cannot work without.
func (i Implementation) Validate() error {
	var missing []string
	if strings.TrimSpace(i.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(i.Language) == "" {
		missing = append(missing, "language")
	}
	if len(i.Dialects) == 0 {
		missing = append(missing, "dialects")
	}
	if len(missing) > 0 {
		return fmt.Errorf("implementation metadata missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Started is the response to Start.
type Started struct {
	Ready          bool           `json:"ready"`
	Version        int            `json:"version"`
	Implementation Implementation `json:"implementation"`
}

// DialectAck is the response to Dialect. OK is nil when the field is absent.
type DialectAck struct {
	OK *bool `json:"ok"`
}

// Acknowledged reports whether the implementation confirmed the dialect.
func (a DialectAck) Acknowledged() bool {
	return a.OK != nil && *a.OK
}

// ErrMissingSeq is returned when a run response has no seq field.
var ErrMissingSeq = errors.New("response has no seq")

// ResponseSeq extracts the seq echoed in a run response without otherwise
// interpreting it.
func ResponseSeq(data []byte) (cases.Seq, error) {
	var probe struct {
		Seq json.RawMessage `json:"seq"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("decode run response: %w", err)
	}
	if len(probe.Seq) == 0 || string(probe.Seq) == "null" {
		return 0, ErrMissingSeq
	}
	n, err := strconv.ParseInt(string(probe.Seq), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seq %s is not an integer", probe.Seq)
	}
	return cases.Seq(n), nil
}
