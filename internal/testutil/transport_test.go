package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/channel"
	"github.com/roach88/bowtie/internal/protocol"
)

func TestFakeTransport_AnswersCompleteLines(t *testing.T) {
	ft := NewFakeTransport(func(req []byte) Reply {
		return Reply{Chunks: []channel.Chunk{Line(string(req))}}
	})

	_, err := ft.Write([]byte(`{"a":`))
	require.NoError(t, err)
	assert.Empty(t, ft.Requests())

	_, err = ft.Write([]byte("1}\n"))
	require.NoError(t, err)
	require.Len(t, ft.Requests(), 1)

	chunk := <-ft.Chunks()
	assert.Equal(t, channel.Stdout, chunk.Kind)
	assert.Equal(t, "{\"a\":1}\n", string(chunk.Data))
}

func TestFakeTransport_CloseIsIdempotent(t *testing.T) {
	ft := NewFakeTransport(nil)
	require.NoError(t, ft.Close())
	assert.ErrorIs(t, ft.Close(), channel.ErrAlreadyGone)
	assert.Equal(t, 2, ft.CloseCalls())
	assert.True(t, ft.Exited())

	_, err := ft.Write([]byte("x\n"))
	assert.Error(t, err)

	_, ok := <-ft.Chunks()
	assert.False(t, ok)
}

func TestFakeImplementation_Handshake(t *testing.T) {
	impl := FakeImplementation{Name: "one"}
	reply := impl.Handler()([]byte(`{"cmd": "start", "version": 1}`))
	require.Len(t, reply.Chunks, 1)

	var started protocol.Started
	require.NoError(t, json.Unmarshal(reply.Chunks[0].Data, &started))
	assert.True(t, started.Ready)
	assert.Equal(t, 1, started.Version)
	assert.Equal(t, "go-one", started.Implementation.ID())
}

func TestFakeImplementation_RunDefaultsToValid(t *testing.T) {
	impl := FakeImplementation{}
	reply := impl.Handler()([]byte(`{"cmd": "run", "seq": 3, "case": {"description": "d", "schema": {}, "tests": [{"description": "a", "instance": 1}, {"description": "b", "instance": 2}]}}`))
	require.Len(t, reply.Chunks, 1)
	assert.JSONEq(t, `{"seq": 3, "results": [{"valid": true}, {"valid": true}]}`, string(reply.Chunks[0].Data))
}
