// Package browsersm drives a single CDP page across its lifetime:
// launching or attaching to Chrome, observing console/exception/
// navigation state, assembling coverage-aware snapshots under a
// debugger pause, and applying typed actions back onto the page.
package browsersm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/configtypes"
	"github.com/bombadil/exerciser/internal/intercept"
	"github.com/bombadil/exerciser/pkg/types"
)

// EventKind tags the StateMachine's event stream.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventError
)

// Event is emitted by NextEvent: either a completed State or an Err.
type Event struct {
	Kind  EventKind
	State *types.BrowserState
	Err   error
}

// StateMachine owns one browser tab's CDP session for the lifetime of
// a run.
type StateMachine struct {
	logger      *zap.Logger
	config      configtypes.BrowserConfig
	edgeMapSize int
	entryURL    string

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	ctx             context.Context
	cancel          context.CancelFunc

	pipeline *intercept.Pipeline

	mu         sync.Mutex
	console    []types.ConsoleEntry
	exceptions []types.ExceptionEntry

	pausedFrame chan cdp.CallFrameID

	events chan Event
}

// New builds a StateMachine; Initiate must be called before use.
func New(logger *zap.Logger, config configtypes.BrowserConfig, edgeMapSize int, entryURL string) *StateMachine {
	return &StateMachine{
		logger:      logger,
		config:      config,
		edgeMapSize: edgeMapSize,
		entryURL:    entryURL,
		pipeline:    intercept.New(logger, edgeMapSize),
		pausedFrame: make(chan cdp.CallFrameID, 1),
		events:      make(chan Event, 16),
	}
}

// Initiate launches Chrome, opens the entry URL, and installs all the
// listeners a snapshot depends on.
func (sm *StateMachine) Initiate(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", sm.config.Headless),
		chromedp.Flag("no-sandbox", sm.config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
	)
	if sm.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(sm.config.UserDataDir))
	}

	sm.allocatorCtx, sm.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)
	sm.ctx, sm.cancel = chromedp.NewContext(sm.allocatorCtx)

	if err := chromedp.Run(sm.ctx); err != nil {
		return fmt.Errorf("browsersm: start chrome: %w", err)
	}

	if err := chromedp.Run(sm.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	})); err != nil {
		sm.logger.Warn("browsersm: failed to confirm browser version", zap.Error(err))
	}

	sm.installListeners()

	if err := chromedp.Run(sm.ctx,
		network.Enable(),
		fetch.Enable().WithPatterns(intercept.Patterns()),
		page.Enable(),
		cdpruntime.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := debugger.Enable().Do(ctx)
			return err
		}),
	); err != nil {
		return fmt.Errorf("browsersm: enable domains: %w", err)
	}

	if sm.config.Width > 0 && sm.config.Height > 0 {
		if err := chromedp.Run(sm.ctx, chromedp.EmulateViewport(int64(sm.config.Width), int64(sm.config.Height))); err != nil {
			sm.logger.Warn("browsersm: failed to set viewport", zap.Error(err))
		}
	}

	navCtx, navCancel := context.WithTimeout(sm.ctx, 30*time.Second)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(sm.entryURL)); err != nil {
		return fmt.Errorf("browsersm: navigate to entry url: %w", err)
	}

	state, err := sm.RequestState(sm.ctx)
	if err != nil {
		return fmt.Errorf("browsersm: initial snapshot: %w", err)
	}
	sm.emit(Event{Kind: EventStateChanged, State: state})
	return nil
}

// installListeners wires the fetch pipeline and the console/exception/
// debugger-paused collectors that every snapshot drains from.
func (sm *StateMachine) installListeners() {
	sm.pipeline.Install(sm.ctx)

	chromedp.ListenTarget(sm.ctx, func(event interface{}) {
		switch ev := event.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			sm.onConsoleAPICalled(ev)
		case *cdpruntime.EventExceptionThrown:
			sm.onExceptionThrown(ev)
		case *debugger.EventPaused:
			if len(ev.CallFrames) > 0 {
				select {
				case sm.pausedFrame <- ev.CallFrames[0].CallFrameID:
				default:
				}
			}
		case *page.EventFrameNavigated, *page.EventLoadEventFired:
			if state, err := sm.RequestState(sm.ctx); err == nil {
				sm.emit(Event{Kind: EventStateChanged, State: state})
			}
		}
	})
}

func (sm *StateMachine) onConsoleAPICalled(ev *cdpruntime.EventConsoleAPICalled) {
	var level string
	switch ev.Type {
	case cdpruntime.APITypeError:
		level = "error"
	case cdpruntime.APITypeWarning:
		level = "warning"
	default:
		return
	}
	text := formatConsoleArgs(ev.Args)
	if text == "" {
		return
	}
	sm.mu.Lock()
	sm.console = append(sm.console, types.ConsoleEntry{Level: level, Text: text, Timestamp: time.Now()})
	sm.mu.Unlock()
}

func (sm *StateMachine) onExceptionThrown(ev *cdpruntime.EventExceptionThrown) {
	text := ev.ExceptionDetails.Text
	if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
		text = ev.ExceptionDetails.Exception.Description
	}
	sm.mu.Lock()
	sm.exceptions = append(sm.exceptions, types.ExceptionEntry{Text: text, Timestamp: time.Now()})
	sm.mu.Unlock()
}

func formatConsoleArgs(args []*cdpruntime.RemoteObject) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		if a.Value != nil {
			out += string(a.Value)
		} else {
			out += a.Description
		}
	}
	return out
}

// NextEvent blocks until a state change or error is available, or ctx
// is done.
func (sm *StateMachine) NextEvent(ctx context.Context) (Event, bool) {
	select {
	case ev := <-sm.events:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (sm *StateMachine) emit(ev Event) {
	select {
	case sm.events <- ev:
	default:
		sm.logger.Warn("browsersm: event channel full, dropping event")
	}
}

// Terminate closes the browser and releases its allocator.
func (sm *StateMachine) Terminate() error {
	if sm.cancel != nil {
		sm.cancel()
	}
	if sm.allocatorCancel != nil {
		sm.allocatorCancel()
	}
	return nil
}

// pauseAndEvaluate forces a debugger pause, evaluates expr against
// the resulting call frame, and resumes execution. Used for every
// snapshot-assembly read so it observes a consistent page state.
func (sm *StateMachine) pauseAndEvaluate(ctx context.Context, expr string) (string, error) {
	result, err := sm.evaluateOnPausedFrame(ctx, expr)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(result, &s); err == nil {
		return s, nil
	}
	return string(result), nil
}

// EvaluateExtractor runs expr (an extractor call expression built by
// the runner around a registered extractor's source, spec.md §3) and
// returns its raw JSON result, unlike pauseAndEvaluate which only
// expects strings. Grounded on
// _examples/original_source/src/browser/state.rs's
// evaluate_function_call and src/runner.rs's run_extractors, which
// evaluate the extractor expression against the live page the same
// way every other snapshot read does: under a debugger pause.
func (sm *StateMachine) EvaluateExtractor(ctx context.Context, expr string) (json.RawMessage, error) {
	result, err := sm.evaluateOnPausedFrame(ctx, expr)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(result), nil
}

// evaluateOnPausedFrame is the shared debugger-pause-evaluate-resume
// sequence backing pauseAndEvaluate and EvaluateExtractor.
func (sm *StateMachine) evaluateOnPausedFrame(ctx context.Context, expr string) ([]byte, error) {
	if err := debugger.Pause().Do(ctx); err != nil {
		return nil, fmt.Errorf("debugger pause: %w", err)
	}

	go func() {
		_, _, _ = cdpruntime.Evaluate("void 0").Do(ctx)
	}()

	var frameID cdp.CallFrameID
	select {
	case frameID = <-sm.pausedFrame:
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("timed out waiting for debugger pause")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result, _, err := debugger.EvaluateOnCallFrame(frameID, expr).Do(ctx)
	resumeErr := debugger.Resume().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate on call frame: %w", err)
	}
	if resumeErr != nil {
		sm.logger.Debug("browsersm: debugger resume failed", zap.Error(resumeErr))
	}
	if result == nil || result.Value == nil {
		return nil, nil
	}
	return result.Value, nil
}

// RequestState forces an out-of-band snapshot, per §4.4 step order.
func (sm *StateMachine) RequestState(ctx context.Context) (*types.BrowserState, error) {
	pageStateJSON, err := sm.pauseAndEvaluate(ctx, pageStateScript)
	if err != nil {
		return nil, fmt.Errorf("page state: %w", err)
	}
	var pageState struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		ContentType string `json:"contentType"`
	}
	if pageStateJSON != "" {
		_ = json.Unmarshal([]byte(pageStateJSON), &pageState)
	}

	nav, err := sm.navigationHistory(ctx)
	if err != nil {
		sm.logger.Warn("browsersm: failed to read navigation history", zap.Error(err))
	}

	coverageJSON, err := sm.pauseAndEvaluate(ctx, coverageReadScript)
	if err != nil {
		return nil, fmt.Errorf("coverage read: %w", err)
	}
	coverage, err := parseCoverageDelta(coverageJSON)
	if err != nil {
		sm.logger.Warn("browsersm: failed to parse coverage delta", zap.Error(err))
	}

	simHashStr, err := sm.pauseAndEvaluate(ctx, simHashScript)
	if err != nil {
		return nil, fmt.Errorf("simhash: %w", err)
	}
	transitionHash := parseTransitionHash(simHashStr)

	sm.mu.Lock()
	console := sm.console
	sm.console = nil
	exceptions := sm.exceptions
	sm.exceptions = nil
	sm.mu.Unlock()

	screenshot, err := sm.captureScreenshot(ctx)
	if err != nil {
		sm.logger.Warn("browsersm: screenshot failed", zap.Error(err))
	}

	return &types.BrowserState{
		Timestamp:      time.Now(),
		URL:            pageState.URL,
		Title:          pageState.Title,
		ContentType:    pageState.ContentType,
		ConsoleEntries: console,
		Navigation:     nav,
		Exceptions:     exceptions,
		TransitionHash: transitionHash,
		Coverage:       coverage,
		Screenshot:     screenshot,
	}, nil
}

func parseCoverageDelta(raw string) (types.CoverageDelta, error) {
	if raw == "" {
		return nil, nil
	}
	var pairs [][2]int
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	delta := make(types.CoverageDelta, 0, len(pairs))
	for _, p := range pairs {
		delta = append(delta, types.EdgeBucket{Index: uint32(p[0]), Bucket: uint8(p[1])})
	}
	return delta, nil
}

func parseTransitionHash(raw string) *uint64 {
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (sm *StateMachine) navigationHistory(ctx context.Context) (types.NavigationHistory, error) {
	var currentIndex int64
	var entries []*page.NavigationEntry
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		idx, es, err := page.GetNavigationHistory().Do(ctx)
		currentIndex, entries = idx, es
		return err
	}))
	if err != nil {
		return types.NavigationHistory{}, err
	}

	var back, forward []string
	var current string
	for i, e := range entries {
		if e.URL == "about:blank" {
			continue
		}
		switch {
		case int64(i) < currentIndex:
			back = append(back, e.URL)
		case int64(i) == currentIndex:
			current = e.URL
		default:
			forward = append(forward, e.URL)
		}
	}
	return types.NavigationHistory{Back: back, Current: current, Forward: forward}, nil
}

func (sm *StateMachine) captureScreenshot(ctx context.Context) (types.Screenshot, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		buf = data
		return err
	}))
	if err != nil {
		return types.Screenshot{}, err
	}
	return types.Screenshot{Format: types.ScreenshotPNG, Bytes: buf}, nil
}

// Apply dispatches action through CDP, bounded by timeout, then
// forces a new snapshot and emits it.
func (sm *StateMachine) Apply(ctx context.Context, action types.BrowserAction, timeout time.Duration) error {
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := sm.dispatch(actionCtx, action); err != nil {
		sm.logger.Debug("browsersm: action failed, continuing with a snapshot of current state",
			zap.String("kind", string(action.Kind)), zap.Error(err))
	}

	state, err := sm.RequestState(sm.ctx)
	if err != nil {
		sm.emit(Event{Kind: EventError, Err: err})
		return err
	}
	sm.emit(Event{Kind: EventStateChanged, State: state})
	return nil
}

func (sm *StateMachine) dispatch(ctx context.Context, action types.BrowserAction) error {
	switch action.Kind {
	case types.ActionBack:
		return sm.navigateHistory(ctx, -1)
	case types.ActionForward:
		return sm.navigateHistory(ctx, 1)
	case types.ActionReload:
		return chromedp.Run(ctx, page.Reload())
	case types.ActionClick:
		if action.Point == nil {
			return fmt.Errorf("click action missing point")
		}
		return chromedp.Run(ctx,
			input.DispatchMouseEvent(input.MousePressed, action.Point.X, action.Point.Y).WithButton(input.Left).WithClickCount(1),
			input.DispatchMouseEvent(input.MouseReleased, action.Point.X, action.Point.Y).WithButton(input.Left).WithClickCount(1),
		)
	case types.ActionTypeText:
		return sm.typeText(ctx, action)
	case types.ActionPressKey:
		return sm.pressKey(ctx, action.Code)
	case types.ActionScrollUp:
		return sm.scroll(ctx, action, -1)
	case types.ActionScrollDown:
		return sm.scroll(ctx, action, 1)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (sm *StateMachine) navigateHistory(ctx context.Context, direction int64) error {
	var currentIndex int64
	var entries []*page.NavigationEntry
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		idx, es, err := page.GetNavigationHistory().Do(ctx)
		currentIndex, entries = idx, es
		return err
	}))
	if err != nil {
		return err
	}
	target := currentIndex + direction
	if target < 0 || target >= int64(len(entries)) {
		return fmt.Errorf("history navigation out of bounds")
	}
	return chromedp.Run(ctx, page.NavigateToHistoryEntry(entries[target].ID))
}

func (sm *StateMachine) typeText(ctx context.Context, action types.BrowserAction) error {
	delay := action.EffectiveDelay()
	for _, r := range action.Text {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := chromedp.Run(ctx, input.InsertText(string(r))); err != nil {
			return err
		}
	}
	return nil
}

func (sm *StateMachine) pressKey(ctx context.Context, code uint8) error {
	key, err := lookupKey(code)
	if err != nil {
		return err
	}
	actions := []chromedp.Action{
		input.DispatchKeyEvent(input.KeyRawKeyDown).WithCode(key.name).WithKey(key.name),
	}
	if key.text != "" {
		actions = append(actions, input.DispatchKeyEvent(input.KeyChar).WithCode(key.name).WithKey(key.name).WithText(key.text))
	}
	actions = append(actions, input.DispatchKeyEvent(input.KeyUp).WithCode(key.name).WithKey(key.name))
	return chromedp.Run(ctx, actions...)
}

func (sm *StateMachine) scroll(ctx context.Context, action types.BrowserAction, sign int64) error {
	origin := types.Point{}
	if action.Origin != nil {
		origin = *action.Origin
	}
	yDistance := sign * action.Distance
	speed := action.Distance * 10
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.SynthesizeScrollGesture(origin.X, origin.Y).
			WithYDistance(float64(yDistance)).
			WithSpeed(float64(speed)).
			Do(ctx)
	}))
}
