package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowtie/internal/cases"
)

func TestCommands_WireShape(t *testing.T) {
	tests := []struct {
		name string
		cmd  any
		want string
	}{
		{"start", NewStart(1), `{"cmd": "start", "version": 1}`},
		{"dialect", NewDialect("https://json-schema.org/draft/2020-12/schema"),
			`{"cmd": "dialect", "dialect": "https://json-schema.org/draft/2020-12/schema"}`},
		{"stop", NewStop(), `{"cmd": "stop"}`},
		{"run", NewRun(4, cases.TestCase{
			Description: "d",
			Schema:      json.RawMessage(`{}`),
			Tests:       []cases.Test{{Description: "t", Instance: json.RawMessage(`1`)}},
		}), `{"cmd": "run", "seq": 4, "case": {"description": "d", "schema": {}, "tests": [{"description": "t", "instance": 1}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.cmd)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestImplementation_Validate(t *testing.T) {
	impl := Implementation{Name: "jsonschema", Language: "python", Dialects: []string{"x"}}
	require.NoError(t, impl.Validate())
	assert.Equal(t, "python-jsonschema", impl.ID())

	err := Implementation{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name, language, dialects")
}

func TestDialectAck(t *testing.T) {
	var ack DialectAck
	require.NoError(t, json.Unmarshal([]byte(`{"ok": true}`), &ack))
	assert.True(t, ack.Acknowledged())

	ack = DialectAck{}
	require.NoError(t, json.Unmarshal([]byte(`{"ok": false}`), &ack))
	assert.False(t, ack.Acknowledged())

	ack = DialectAck{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &ack))
	assert.False(t, ack.Acknowledged())
}

func TestResponseSeq(t *testing.T) {
	seq, err := ResponseSeq([]byte(`{"seq": 999999, "results": []}`))
	require.NoError(t, err)
	assert.Equal(t, cases.Seq(999999), seq)

	_, err = ResponseSeq([]byte(`{"results": []}`))
	assert.ErrorIs(t, err, ErrMissingSeq)

	_, err = ResponseSeq([]byte(`{"seq": "one"}`))
	assert.ErrorContains(t, err, "not an integer")

	_, err = ResponseSeq([]byte(`not json`))
	assert.Error(t, err)
}
