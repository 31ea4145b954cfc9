package browsersm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bombadil/exerciser/pkg/types"
)

func TestParseCoverageDelta_Empty(t *testing.T) {
	delta, err := parseCoverageDelta("[]")
	require.NoError(t, err)
	assert.Empty(t, delta)
}

func TestParseCoverageDelta_Scenario(t *testing.T) {
	delta, err := parseCoverageDelta(`[[17,2],[42,8]]`)
	require.NoError(t, err)
	assert.Equal(t, types.CoverageDelta{
		{Index: 17, Bucket: 2},
		{Index: 42, Bucket: 8},
	}, delta)
}

func TestParseTransitionHash_Null(t *testing.T) {
	assert.Nil(t, parseTransitionHash("null"))
	assert.Nil(t, parseTransitionHash(""))
}

func TestParseTransitionHash_Value(t *testing.T) {
	h := parseTransitionHash("18446744073709551615")
	require.NotNil(t, h)
	assert.Equal(t, uint64(18446744073709551615), *h)
}

func TestFormatConsoleArgs_NilArgsIsEmpty(t *testing.T) {
	got := formatConsoleArgs(nil)
	assert.Equal(t, "", got)
}
