package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Chain
	}{
		{name: "empty", raw: "", want: nil},
		{name: "placeholder", raw: "%@", want: nil},
		{name: "bare name", raw: "textContent", want: Chain{{Name: "textContent"}}},
		{name: "names", raw: `["before1","before2"]`, want: Chain{{Name: "before1"}, {Name: "before2"}}},
		{
			name: "objects",
			raw:  `[{"method_name":"getAttribute","args":["href"]},"trim"]`,
			want: Chain{{Name: "getAttribute", Args: []any{"href"}}, {Name: "trim"}},
		},
		{name: "single object", raw: `{"method_name":"item","args":[2]}`, want: Chain{{Name: "item", Args: []any{float64(2)}}}},
		{name: "encoded twice", raw: `"[\"trim\"]"`, want: Chain{{Name: "trim"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseChain(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChainNames(t *testing.T) {
	chain, err := ParseChain(`[{"method_name":"getAttribute","args":["href"]},"trim"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"getAttribute", "trim"}, chain.Names())
	assert.Empty(t, Chain(nil).Names())
}

func TestParseChainErrors(t *testing.T) {
	for _, raw := range []string{`[1]`, `[{"args":[]}]`, `{"method_name":"x","args":"y"}`, `["a",`} {
		_, err := ParseChain(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeXPath, ParseType("xpath"))
	assert.Equal(t, TypeDump, ParseType(" DUMP "))
	assert.Equal(t, TypeJob, ParseType("job"))
	assert.Equal(t, TypeCSS, ParseType("css"))
	assert.Equal(t, TypeCSS, ParseType("%@"))
	assert.Equal(t, TypeCSS, ParseType(""))
}
