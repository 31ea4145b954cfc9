// Package runner implements the fixed-point exerciser loop: pull a
// snapshot from the browser state machine, evaluate extractors
// against it, step the verifier, enforce origin containment,
// accumulate coverage, and dispatch the next weighted action (spec.md
// §4.5 "Runner loop").
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/verifier"
	"github.com/bombadil/exerciser/pkg/types"
)

// Browser is the subset of the browser state machine's API the runner
// depends on, narrowed so a fake can stand in for tests.
type Browser interface {
	RequestState(ctx context.Context) (*types.BrowserState, error)
	Apply(ctx context.Context, action types.BrowserAction, timeout time.Duration) error
	// EvaluateExtractor runs expr against the live page and returns
	// its raw JSON result (spec.md §3: extractor evaluation happens
	// against externalised page state, not inside the verifier's own
	// JS context). expr is built by buildExtractorExpr around one
	// registered extractor's source.
	EvaluateExtractor(ctx context.Context, expr string) (json.RawMessage, error)
	Terminate() error
}

// Verifier is the subset of the verifier's API the runner depends on.
type Verifier interface {
	Extractors() []verifier.ExtractorInfo
	Step(extracted map[uint64]interface{}, t time.Time) (verifier.StepResult, error)
	AllDefinite() bool
	AnyFalse() (*verifier.Property, bool)
}

// Runner drives the fixed-point loop for a single exerciser run.
type Runner struct {
	logger          *zap.Logger
	browser         Browser
	verifier        Verifier
	originHost      string
	stopOnViolation bool
	rng             *rand.Rand
	edges           *EdgeMap
	onEvent         func(RunEvent)

	extractors     []verifier.ExtractorInfo
	lastAction     *types.BrowserAction
	lastProperties []*verifier.Property
}

// New builds a Runner. onEvent may be nil if the caller doesn't need
// per-step notification.
func New(logger *zap.Logger, browser Browser, v Verifier, originHost string, stopOnViolation bool, rng *rand.Rand, onEvent func(RunEvent)) *Runner {
	return &Runner{
		logger:          logger,
		browser:         browser,
		verifier:        v,
		originHost:      originHost,
		stopOnViolation: stopOnViolation,
		rng:             rng,
		edges:           NewEdgeMap(),
		onEvent:         onEvent,
	}
}

// Summary is the terminal outcome of a Run call.
type Summary struct {
	Steps            int
	CoverageEdges    int
	Violated         bool
	ViolatedProperty string
	Witness          string
	Properties       []PropertyOutcome
}

// Run executes the loop until a stop condition is reached or ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	r.extractors = r.verifier.Extractors()

	for {
		select {
		case <-ctx.Done():
			summary.Properties = finalPropertyOutcomes(r.lastProperties)
			applyStopDefaults(&summary, r.lastProperties)
			return summary, ctx.Err()
		default:
		}

		state, err := r.browser.RequestState(ctx)
		if err != nil {
			return summary, fmt.Errorf("runner: request state: %w", err)
		}

		extracted, err := r.evaluateExtractors(ctx, state)
		if err != nil {
			return summary, fmt.Errorf("runner: evaluate extractors: %w", err)
		}

		result, err := r.verifier.Step(extracted, state.Timestamp)
		if err != nil {
			return summary, fmt.Errorf("runner: verifier step: %w", err)
		}
		r.lastProperties = result.Properties

		actions := result.Actions
		if !withinOrigin(r.originHost, state.URL) {
			actions = filterToBackOnly(actions)
		}

		newEdges := r.edges.Accumulate(state.Coverage)
		summary.Steps++

		ev := RunEvent{
			Kind:          RunEventNewState,
			Timestamp:     state.Timestamp,
			State:         state,
			Properties:    propertyOutcomes(result.Properties),
			CoverageEdges: r.edges.Size(),
			NewEdges:      newEdges,
		}

		violatedProp, hasViolation := r.verifier.AnyFalse()
		allDefinite := r.verifier.AllDefinite()

		if hasViolation && (r.stopOnViolation || allDefinite) {
			summary.Violated = true
			summary.ViolatedProperty = violatedProp.Name
			summary.Witness = violatedProp.Witness
		}

		if (hasViolation && r.stopOnViolation) || allDefinite {
			r.emit(ev)
			summary.CoverageEdges = r.edges.Size()
			summary.Properties = finalPropertyOutcomes(result.Properties)
			return summary, nil
		}

		pruned := actions.Prune()
		action, ok := pruned.Pick(r.rng)
		if !ok {
			r.emit(ev)
			summary.Properties = finalPropertyOutcomes(result.Properties)
			return summary, ErrNoActionAvailable
		}
		ev.DispatchedNext = &action
		r.emit(ev)

		if err := r.browser.Apply(ctx, action, action.ActionTimeout()); err != nil {
			r.logger.Info("runner: action failed",
				zap.String("kind", string(action.Kind)),
				zap.Error(err))
		}
		r.lastAction = &action
	}
}

// evaluateExtractors runs every registered extractor's source against
// the just-observed snapshot (spec.md §3/§4.5 step 1: "extractor
// evaluation is the first action of every step"), returning a map the
// verifier's Step can feed straight into update_from_snapshots.
//
// Grounded on _examples/original_source/src/runner.rs's run_extractors:
// it assembles a partial state object (errors, console,
// navigationHistory, lastAction) and evaluates
// "(state) => (<extractor source>)({ ...state, document, window })"
// against the live page for each extractor.
func (r *Runner) evaluateExtractors(ctx context.Context, state *types.BrowserState) (map[uint64]interface{}, error) {
	if len(r.extractors) == 0 {
		return nil, nil
	}

	statePartial, err := buildExtractorStatePartial(state, r.lastAction)
	if err != nil {
		return nil, fmt.Errorf("building extractor state: %w", err)
	}

	extracted := make(map[uint64]interface{}, len(r.extractors))
	for _, e := range r.extractors {
		expr := buildExtractorExpr(e.Source, statePartial)
		raw, err := r.browser.EvaluateExtractor(ctx, expr)
		if err != nil {
			r.logger.Warn("runner: extractor evaluation failed",
				zap.Uint64("extractor_id", e.ID),
				zap.String("source", e.Source),
				zap.Error(err))
			continue
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			r.logger.Warn("runner: extractor returned non-JSON result",
				zap.Uint64("extractor_id", e.ID),
				zap.Error(err))
			continue
		}
		extracted[e.ID] = value
	}
	return extracted, nil
}

// extractorStatePartial is the page-state view extractors run
// against, mirroring the camelCase shape runner.rs's run_extractors
// builds (errors.uncaughtExceptions, console, navigationHistory,
// lastAction).
type extractorStatePartial struct {
	Errors struct {
		UncaughtExceptions []types.ExceptionEntry `json:"uncaughtExceptions"`
	} `json:"errors"`
	Console           []types.ConsoleEntry    `json:"console"`
	NavigationHistory types.NavigationHistory `json:"navigationHistory"`
	LastAction        *types.BrowserAction    `json:"lastAction"`
}

func buildExtractorStatePartial(state *types.BrowserState, lastAction *types.BrowserAction) ([]byte, error) {
	var partial extractorStatePartial
	partial.Errors.UncaughtExceptions = state.Exceptions
	partial.Console = state.ConsoleEntries
	partial.NavigationHistory = state.Navigation
	partial.LastAction = lastAction
	return json.Marshal(partial)
}

// buildExtractorExpr wraps an extractor's source into a call
// expression the browser can evaluate directly, merging the
// Go-assembled state partial with the page's live document/window
// globals, matching run_extractors' "(state) => (fn)({ ...state,
// document, window })" shape.
func buildExtractorExpr(source string, statePartial []byte) string {
	return fmt.Sprintf(
		"(function(){ var __bombadil_state = Object.assign({}, %s, { document: document, window: window }); return (%s)(__bombadil_state); })()",
		statePartial, source,
	)
}

func (r *Runner) emit(ev RunEvent) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func propertyOutcomes(props []*verifier.Property) []PropertyOutcome {
	out := make([]PropertyOutcome, 0, len(props))
	for _, p := range props {
		out = append(out, PropertyOutcome{
			Name:    p.Name,
			Status:  statusString(p.Status),
			Witness: p.Witness,
		})
	}
	return out
}

// finalPropertyOutcomes is like propertyOutcomes but, for any property
// still Residual, reports its stop-default verdict instead of leaving
// it ambiguously open (spec.md-adjacent "terminal-decision default",
// grounded on the original's stop/stop_default test helper).
func finalPropertyOutcomes(props []*verifier.Property) []PropertyOutcome {
	out := make([]PropertyOutcome, 0, len(props))
	for _, p := range props {
		if p.Definite() {
			out = append(out, PropertyOutcome{Name: p.Name, Status: statusString(p.Status), Witness: p.Witness})
			continue
		}
		def, witness := p.StopDefault()
		status := "False(default)"
		if def {
			status = "True(default)"
		}
		out = append(out, PropertyOutcome{Name: p.Name, Status: status, Witness: witness})
	}
	return out
}

// applyStopDefaults marks the run as violated if any still-residual
// property defaults to false once the run is cut short (e.g. an
// Eventually that never fired before the context deadline).
func applyStopDefaults(summary *Summary, props []*verifier.Property) {
	for _, p := range props {
		if p.Definite() {
			continue
		}
		def, witness := p.StopDefault()
		if !def {
			summary.Violated = true
			summary.ViolatedProperty = p.Name
			summary.Witness = witness
			return
		}
	}
}

func statusString(s verifier.PropertyStatus) string {
	switch s {
	case verifier.StatusTrue:
		return "True"
	case verifier.StatusFalse:
		return "False"
	default:
		return "Residual"
	}
}
