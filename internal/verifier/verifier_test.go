package verifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleSpec = `
var bombadil = require("@bombadil");

var counter = 0;

exports.stopsEventually = bombadil.eventually(function() {
  counter++;
  return counter >= 3;
}, "counter >= 3").within(10, "milliseconds");

exports.clicksAroundForever = bombadil.actionGenerator(function() {
  return bombadil.uniform([bombadil.click("submit-button"), bombadil.back()]);
});
`

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return New(zap.NewNop(), &ReplayByteSource{Bytes: []byte{1, 2, 3, 4}})
}

func TestLoadSpecification_RegistersPropertyAndGenerator(t *testing.T) {
	v := newTestVerifier(t)
	require.NoError(t, v.LoadSpecification("sample.js", []byte(sampleSpec)))
	assert.Len(t, v.properties, 1)
	assert.Len(t, v.generators, 1)
}

func TestLoadSpecification_RequiresAtLeastOneGenerator(t *testing.T) {
	v := newTestVerifier(t)
	err := v.LoadSpecification("sample.js", []byte(`
var bombadil = require("@bombadil");
exports.p = bombadil.pure(true, "p");
`))
	assert.ErrorIs(t, err, ErrNoActionGenerator)
}

func TestLoadSpecification_RejectsUnrecognisedExport(t *testing.T) {
	v := newTestVerifier(t)
	err := v.LoadSpecification("sample.js", []byte(`
var bombadil = require("@bombadil");
exports.gen = bombadil.actionGenerator(function() { return bombadil.uniform([bombadil.back()]); });
exports.junk = 42;
`))
	assert.ErrorIs(t, err, ErrUnrecognisedExport)
}

func TestStep_DrivesPropertyToDefinite(t *testing.T) {
	v := newTestVerifier(t)
	require.NoError(t, v.LoadSpecification("sample.js", []byte(sampleSpec)))

	base := time.UnixMilli(0)
	var last StepResult
	for i := 0; i < 5 && !v.AllDefinite(); i++ {
		res, err := v.Step(nil, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		last = res
		assert.False(t, last.Actions.IsEmpty())
	}
	assert.True(t, v.AllDefinite())
	assert.Equal(t, StatusTrue, v.properties[0].Status)
}

func TestStep_ActionTreePicksAction(t *testing.T) {
	v := newTestVerifier(t)
	require.NoError(t, v.LoadSpecification("sample.js", []byte(sampleSpec)))

	res, err := v.Step(nil, time.UnixMilli(0))
	require.NoError(t, err)
	pruned := res.Actions.Prune()
	assert.False(t, pruned.IsEmpty())
}

// extractSpec reproduces the shape of
// _examples/original_source/src/specification/verifier.rs's
// test_property_evaluation_always: a property reads page state
// exclusively through an extract()ed value's .current, never through
// a Go-side closure, exercising the JS extract mechanism end to end.
const extractSpec = `
var bombadil = require("@bombadil");

var counter = bombadil.extract(function(state) { return state.counter; });

exports.counterStaysSmall = bombadil.always(function() {
  return counter.current < 3;
});

exports.clicksAroundForever = bombadil.actionGenerator(function() {
  return bombadil.uniform([bombadil.click("submit-button"), bombadil.back()]);
});
`

func TestLoadSpecification_ExtractorDrivesPropertyThroughJS(t *testing.T) {
	v := newTestVerifier(t)
	require.NoError(t, v.LoadSpecification("extract.js", []byte(extractSpec)))

	extractors := v.Extractors()
	require.Len(t, extractors, 1)
	assert.Equal(t, "function(state) { return state.counter; }", extractors[0].Source)
	id := extractors[0].ID

	base := time.UnixMilli(0)
	for i := 0; i < 5 && !v.AllDefinite(); i++ {
		_, err := v.Step(map[uint64]interface{}{id: i}, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}

	assert.True(t, v.AllDefinite())
	require.Len(t, v.properties, 1)
	assert.Equal(t, StatusFalse, v.properties[0].Status)
}
