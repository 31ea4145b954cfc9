package instrument

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScript_RejectsNonPowerOfTwoMapSize(t *testing.T) {
	_, err := Script("1+1;", 1, 100)
	assert.Error(t, err)
}

func TestScript_InstrumentsControlFlowBlocks(t *testing.T) {
	src := `
function f(x) {
  if (x > 0) {
    return 1;
  } else {
    return -1;
  }
}
`
	out, err := Script(src, 7, 1024)
	require.NoError(t, err)

	assert.Contains(t, out, Namespace)
	count := strings.Count(out, Namespace+".current[")
	// top-level entry + function body + if + else = 4 sites; the bootstrap
	// line only initialises the arrays and holds no increment
	assert.Equal(t, 4, count)
}

func TestScript_DoesNotTouchStringOrTemplateContents(t *testing.T) {
	src := "const s = \"{ not a block }\"; const t = `{also not a block ${1 + 1}}`;"
	out, err := Script(src, 1, 64)
	require.NoError(t, err)
	assert.Contains(t, out, `"{ not a block }"`)
	assert.Contains(t, out, "{also not a block ${1 + 1}}")
}

func TestScript_DeterministicEdgeIDs(t *testing.T) {
	src := "if (true) { doThing(); }"
	a, err := Script(src, 42, 1024)
	require.NoError(t, err)
	b, err := Script(src, 42, 1024)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIsHTMLDocument_ByContentType(t *testing.T) {
	assert.True(t, IsHTMLDocument("text/html; charset=utf-8", nil))
	assert.False(t, IsHTMLDocument("application/json", nil))
}

func TestIsHTMLDocument_FallsBackToBodySniff(t *testing.T) {
	assert.False(t, IsHTMLDocument("", []byte("<?xml version=\"1.0\"?><root/>")))
	assert.True(t, IsHTMLDocument("", []byte("<!doctype html><html></html>")))
}

func TestHTMLDocument_InstrumentsInlineScriptsOnly(t *testing.T) {
	body := []byte(`<html><head>
<script>var x = 1;</script>
<script src="/external.js">should not be touched</script>
</head><body></body></html>`)

	out, err := HTMLDocument(body, 99, 1024)
	require.NoError(t, err)

	assert.Contains(t, string(out), Namespace)
	assert.Contains(t, string(out), "should not be touched")
}
