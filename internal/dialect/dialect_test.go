package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_ByURIShortNameAndAlias(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"https://json-schema.org/draft/2020-12/schema", "2020-12"},
		{"http://json-schema.org/draft-07/schema#", "draft7"},
		{"http://json-schema.org/draft-07/schema", "draft7"},
		{"draft4", "draft4"},
		{"Draft2019-09", "2019-09"},
		{"  6 ", "draft6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.ShortName)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("draft-99")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDialect)

	_, err = Lookup("")
	assert.ErrorIs(t, err, ErrUnknownDialect)
}

func TestKnown_NewestFirst(t *testing.T) {
	all := Known()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].Less(all[i-1]), "%s should precede %s", all[i-1], all[i])
	}
	assert.Equal(t, "2020-12", Latest().ShortName)
}

func TestKnown_ReturnsCopy(t *testing.T) {
	all := Known()
	all[0].ShortName = "mutated"
	assert.Equal(t, "2020-12", Latest().ShortName)
}

func TestTopAndBottom(t *testing.T) {
	d7, err := Lookup("draft7")
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(d7.Top()))
	assert.JSONEq(t, `false`, string(d7.Bottom()))

	d4, err := Lookup("draft4")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(d4.Top()))
	assert.JSONEq(t, `{"not": {}}`, string(d4.Bottom()))

	d3, err := Lookup("draft3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"disallow": ["any"]}`, string(d3.Bottom()))
}

func TestSupports(t *testing.T) {
	d, err := Lookup("draft7")
	require.NoError(t, err)
	assert.True(t, d.Supports([]string{"http://json-schema.org/draft-07/schema"}))
	assert.True(t, d.Supports([]string{"x", "http://json-schema.org/draft-07/schema#"}))
	assert.False(t, d.Supports([]string{"https://json-schema.org/draft/2020-12/schema"}))
	assert.False(t, d.Supports(nil))
}
