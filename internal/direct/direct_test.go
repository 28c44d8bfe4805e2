package direct_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/direct"
	"github.com/roach88/bowtie/internal/protocol"
)

func TestLookup(t *testing.T) {
	v, err := direct.Lookup("kaptinlin-jsonschema")
	require.NoError(t, err)
	assert.Equal(t, "go-kaptinlin-jsonschema", v.Metadata().ID())
	require.NoError(t, v.Metadata().Validate())

	_, err = direct.Lookup("nope")
	assert.ErrorContains(t, err, "no direct implementation")
	assert.Contains(t, direct.Names(), "kaptinlin-jsonschema")
}

func TestKaptinlin_Run(t *testing.T) {
	tc := cases.TestCase{
		Description: "integer",
		Schema:      json.RawMessage(`{"type": "integer"}`),
		Tests: []cases.Test{
			{Description: "one", Instance: json.RawMessage(`1`)},
			{Description: "string", Instance: json.RawMessage(`"1"`)},
		},
	}

	resp := direct.Kaptinlin{}.Run("https://json-schema.org/draft/2020-12/schema", protocol.NewRun(7, tc))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq": 7, "results": [{"valid": true}, {"valid": false}]}`, string(data))
}

func TestKaptinlin_RunResolvesRegistry(t *testing.T) {
	tc := cases.TestCase{
		Description: "remote ref",
		Schema:      json.RawMessage(`{"$ref": "http://example.com/positive.json"}`),
		Registry: map[string]json.RawMessage{
			"http://example.com/positive.json": json.RawMessage(`{"$id": "http://example.com/positive.json", "minimum": 0}`),
		},
		Tests: []cases.Test{
			{Description: "positive", Instance: json.RawMessage(`3`)},
			{Description: "negative", Instance: json.RawMessage(`-3`)},
		},
	}

	resp := direct.Kaptinlin{}.Run("", protocol.NewRun(1, tc))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq": 1, "results": [{"valid": true}, {"valid": false}]}`, string(data))
}

func TestTransport_SpeaksProtocol(t *testing.T) {
	tr := direct.NewTransport(direct.Kaptinlin{})
	ch := channel.New(tr, time.Second)
	ctx := context.Background()

	require.NoError(t, ch.Send(protocol.NewStart(protocol.CurrentVersion)))
	var started protocol.Started
	_, err := ch.ReceiveJSON(ctx, &started)
	require.NoError(t, err)
	assert.True(t, started.Ready)
	assert.Equal(t, protocol.CurrentVersion, started.Version)

	require.NoError(t, ch.Send(protocol.NewDialect("https://json-schema.org/draft/2020-12/schema")))
	var ack protocol.DialectAck
	_, err = ch.ReceiveJSON(ctx, &ack)
	require.NoError(t, err)
	assert.True(t, ack.Acknowledged())

	tc := cases.TestCase{
		Description: "anything",
		Schema:      json.RawMessage(`true`),
		Tests:       []cases.Test{{Description: "null", Instance: json.RawMessage(`null`)}},
	}
	require.NoError(t, ch.Send(protocol.NewRun(1, tc)))
	line, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq": 1, "results": [{"valid": true}]}`, string(line))

	require.NoError(t, ch.Send(protocol.NewStop()))
	_, err = ch.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, tr.Exited())

	require.NoError(t, ch.Close())
}

func TestTransport_RunBeforeStartWritesStderr(t *testing.T) {
	tr := direct.NewTransport(direct.Kaptinlin{})
	ch := channel.New(tr, 50*time.Millisecond)

	require.NoError(t, ch.Send(protocol.NewRun(1, cases.TestCase{Schema: json.RawMessage(`{}`)})))
	_, err := ch.Receive(context.Background())

	var stderrErr *channel.GotStderrError
	require.ErrorAs(t, err, &stderrErr)
	assert.Contains(t, string(stderrErr.Stderr), "run before start")
}
