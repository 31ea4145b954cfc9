package verifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tAt(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// TestAlways_HundredStepCounter reproduces spec.md §8 scenario 6:
// always(() => foo.current < 100) with foo taking values 0..100 at
// t=0..100 yields Residual for the first 100 steps, then False.
func TestAlways_HundredStepCounter(t *testing.T) {
	foo := 0
	phi := Thunk(func() (Formula, error) {
		return Pure(foo < 100, "foo.current < 100"), nil
	}, "foo.current < 100")
	f := Normalize(AlwaysF(phi, nil, "foo.current < 100"))

	outcome, err := Evaluate(f, tAt(0))
	require.NoError(t, err)
	require.Equal(t, OutcomeResidual, outcome.Kind)
	residual := outcome.Residual

	for step := int64(1); step < 100; step++ {
		foo = int(step)
		outcome, err = Step(residual, tAt(step))
		require.NoError(t, err)
		require.Equalf(t, OutcomeResidual, outcome.Kind, "step %d", step)
		residual = outcome.Residual
	}

	foo = 100
	outcome, err = Step(residual, tAt(100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFalse, outcome.Kind)
}

// TestEventually_BoundedCounter reproduces spec.md §8 scenario 7:
// eventually(() => foo.current === 9).within(3, "milliseconds") with
// foo = 0,1,2,... at t=0,1,2,... yields Residual while t<4, then False.
func TestEventually_BoundedCounter(t *testing.T) {
	foo := 0
	bound := 3 * time.Millisecond
	phi := Thunk(func() (Formula, error) {
		return Pure(foo == 9, "foo.current === 9"), nil
	}, "foo.current === 9")
	f := Normalize(EventuallyF(phi, &bound, "foo.current === 9"))

	outcome, err := Evaluate(f, tAt(0))
	require.NoError(t, err)
	require.Equal(t, OutcomeResidual, outcome.Kind)
	residual := outcome.Residual

	for step := int64(1); step < 4; step++ {
		foo = int(step)
		outcome, err = Step(residual, tAt(step))
		require.NoError(t, err)
		require.Equalf(t, OutcomeResidual, outcome.Kind, "step %d", step)
		residual = outcome.Residual
	}

	foo = 4
	outcome, err = Step(residual, tAt(4))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFalse, outcome.Kind)
}

func TestEval_PureAndBooleanFusion(t *testing.T) {
	tt, err := Eval(Normalize(AndF(Pure(true, "a"), Pure(true, "b"))), tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, tt.Kind)

	ff, err := Eval(Normalize(AndF(Pure(true, "a"), Pure(false, "b"))), tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFalse, ff.Kind)
	assert.Equal(t, "b", ff.Witness)

	or, err := Eval(Normalize(OrF(Pure(false, "a"), Pure(true, "b"))), tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, or.Kind)
}

func TestNormalize_PushesNotThroughAndOr(t *testing.T) {
	f := Normalize(NotF(AndF(Pure(true, "a"), Pure(false, "b"))))
	// not(a and b) == (not a) or (not b) == False or True == True
	outcome, err := Eval(f, tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, outcome.Kind)
}

func TestNormalize_DoubleNegationOnThunkCancels(t *testing.T) {
	phi := Thunk(func() (Formula, error) { return Pure(true, "p"), nil }, "p")
	f := Normalize(NotF(NotF(phi)))
	outcome, err := Eval(f, tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, outcome.Kind)
}

func TestImplies_VacuousWhenAntecedentFalse(t *testing.T) {
	f := Normalize(ImpliesF(Pure(false, "a"), Pure(false, "b")))
	outcome, err := Eval(f, tAt(0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, outcome.Kind)
}

func TestNext_DefersToFollowingStep(t *testing.T) {
	f := Normalize(NextF(Pure(true, "p")))
	outcome, err := Eval(f, tAt(0))
	require.NoError(t, err)
	require.Equal(t, OutcomeResidual, outcome.Kind)

	final, err := Step(outcome.Residual, tAt(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, final.Kind)
}
