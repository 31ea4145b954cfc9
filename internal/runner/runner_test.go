package runner

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/verifier"
	"github.com/bombadil/exerciser/pkg/tree"
	"github.com/bombadil/exerciser/pkg/types"
)

type fakeBrowser struct {
	states  []*types.BrowserState
	idx     int
	applied []types.BrowserAction
}

func (f *fakeBrowser) RequestState(ctx context.Context) (*types.BrowserState, error) {
	s := f.states[f.idx]
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return s, nil
}

func (f *fakeBrowser) Apply(ctx context.Context, action types.BrowserAction, timeout time.Duration) error {
	f.applied = append(f.applied, action)
	return nil
}

func (f *fakeBrowser) EvaluateExtractor(ctx context.Context, expr string) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func (f *fakeBrowser) Terminate() error { return nil }

// fakeVerifier becomes definite (True) after a fixed number of steps.
type fakeVerifier struct {
	stepsUntilTrue int
	steps          int
	action         types.BrowserAction
}

func (f *fakeVerifier) Extractors() []verifier.ExtractorInfo { return nil }

func (f *fakeVerifier) Step(extracted map[uint64]interface{}, t time.Time) (verifier.StepResult, error) {
	f.steps++
	return verifier.StepResult{
		Properties: nil,
		Actions:    tree.Leaf(f.action),
	}, nil
}

func (f *fakeVerifier) AllDefinite() bool { return f.steps >= f.stepsUntilTrue }

func (f *fakeVerifier) AnyFalse() (*verifier.Property, bool) { return nil, false }

func clickAction() types.BrowserAction {
	return types.BrowserAction{Kind: types.ActionClick, Name: "submit"}
}

func TestRun_StopsWhenAllPropertiesDefinite(t *testing.T) {
	states := make([]*types.BrowserState, 10)
	for i := range states {
		states[i] = &types.BrowserState{Timestamp: time.UnixMilli(int64(i)), URL: "https://example.com/app"}
	}
	browser := &fakeBrowser{states: states}
	v := &fakeVerifier{stepsUntilTrue: 3, action: clickAction()}

	r := New(zap.NewNop(), browser, v, "example.com", false, rand.New(rand.NewSource(1)), nil)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Steps)
	assert.Len(t, browser.applied, 2) // dispatches before the 3rd (terminal) step
}

func TestRun_FiltersToBackOutsideOrigin(t *testing.T) {
	states := []*types.BrowserState{
		{Timestamp: time.UnixMilli(0), URL: "https://evil.example/"},
		{Timestamp: time.UnixMilli(1), URL: "https://evil.example/"},
	}
	browser := &fakeBrowser{states: states}
	v := &fakeVerifier{stepsUntilTrue: 2, action: clickAction()}

	r := New(zap.NewNop(), browser, v, "example.com", false, rand.New(rand.NewSource(1)), nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, browser.applied, 1)
	assert.Equal(t, types.ActionBack, browser.applied[0].Kind)
}

func TestRun_StopsImmediatelyOnViolationWhenConfigured(t *testing.T) {
	states := []*types.BrowserState{
		{Timestamp: time.UnixMilli(0), URL: "https://example.com/"},
	}
	browser := &fakeBrowser{states: states}
	v := &violatingVerifier{}

	r := New(zap.NewNop(), browser, v, "example.com", true, rand.New(rand.NewSource(1)), nil)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Violated)
	assert.Empty(t, browser.applied)
}

type violatingVerifier struct{}

func (violatingVerifier) Extractors() []verifier.ExtractorInfo { return nil }

func (violatingVerifier) Step(extracted map[uint64]interface{}, t time.Time) (verifier.StepResult, error) {
	return verifier.StepResult{Actions: tree.Leaf(clickAction())}, nil
}
func (violatingVerifier) AllDefinite() bool { return false }
func (violatingVerifier) AnyFalse() (*verifier.Property, bool) {
	return &verifier.Property{Name: "never-clicks-disabled", Status: verifier.StatusFalse, Witness: "clicked disabled button"}, true
}

func TestRun_NoActionAvailableReturnsError(t *testing.T) {
	states := []*types.BrowserState{{Timestamp: time.UnixMilli(0), URL: "https://example.com/"}}
	browser := &fakeBrowser{states: states}
	v := &emptyTreeVerifier{}

	r := New(zap.NewNop(), browser, v, "example.com", false, rand.New(rand.NewSource(1)), nil)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActionAvailable)
}

type emptyTreeVerifier struct{}

func (emptyTreeVerifier) Extractors() []verifier.ExtractorInfo { return nil }

func (emptyTreeVerifier) Step(extracted map[uint64]interface{}, t time.Time) (verifier.StepResult, error) {
	return verifier.StepResult{Actions: tree.Branch[types.BrowserAction](nil)}, nil
}
func (emptyTreeVerifier) AllDefinite() bool                    { return false }
func (emptyTreeVerifier) AnyFalse() (*verifier.Property, bool) { return nil, false }
