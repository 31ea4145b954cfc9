package verifier

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/pkg/tree"
	"github.com/bombadil/exerciser/pkg/types"
)

// PropertyStatus is the sticky decision state of a registered property.
type PropertyStatus int

const (
	StatusResidual PropertyStatus = iota
	StatusTrue
	StatusFalse
)

// Property is one registered, independently-evaluated LTL formula.
type Property struct {
	Name     string
	Status   PropertyStatus
	Witness  string
	residual Formula
	started  bool
}

// Definite reports whether a property's outcome is settled.
func (p *Property) Definite() bool { return p.Status != StatusResidual }

// StopDefault reports the property's terminal-decision default: its
// actual status if already definite, or the stop-default verdict for
// its residual formula otherwise (spec.md-adjacent concept, grounded
// on the original's stop/stop_default test helper exercised
// throughout _examples/original_source/src/specification/verifier.rs's
// test module — stop_default(residual, time) decides what a residual
// formula would resolve to if no further snapshots arrived).
func (p *Property) StopDefault() (bool, string) {
	switch p.Status {
	case StatusTrue:
		return true, ""
	case StatusFalse:
		return false, p.Witness
	default:
		return StopDefault(p.residual)
	}
}

// extractorHandle is one registered extractor (spec.md §3): a
// monotone id, the JS object backing it (exposing extract/current/
// update), and the extract function's source text, which the runner
// re-evaluates against the live page every step (grounded on
// _examples/original_source/src/runner.rs's run_extractors, which
// evaluates each extractor's stringified source against the browser).
type extractorHandle struct {
	id     uint64
	source string
	obj    *goja.Object
}

// ExtractorInfo is the runner-facing view of a registered extractor:
// enough to re-evaluate it against a snapshot and report the result
// back via Step.
type ExtractorInfo struct {
	ID     uint64
	Source string
}

// Verifier hosts the embedded JS specification context and steps
// registered properties and action generators against each snapshot.
type Verifier struct {
	vm         *goja.Runtime
	logger     *zap.Logger
	modules    map[string]*goja.Object
	properties []*Property
	generators []goja.Callable
	extractors []*extractorHandle
	timeObj    *goja.Object
}

// New constructs a Verifier with a fresh JS context and the given
// random byte source wired into __random_bytes.
func New(logger *zap.Logger, randSrc ByteSource) *Verifier {
	vm := goja.New()
	registerRandomBuiltin(vm, randSrc)
	v := &Verifier{vm: vm, logger: logger, modules: map[string]*goja.Object{}}
	return v
}

// require resolves a virtual module by name, compiling and caching it
// on first use. Modules are evaluated in a CommonJS-style closure so
// the pre-registered set can cross-reference each other with
// require(), matching spec.md §4.5's "pre-registers ... with their
// inter-dependency order".
func (v *Verifier) require(name string) (*goja.Object, error) {
	if mod, ok := v.modules[name]; ok {
		return mod, nil
	}
	for _, m := range virtualModules {
		if m.name != name {
			continue
		}
		return v.evalModule(name, m.source)
	}
	return nil, fmt.Errorf("verifier: unknown module %q", name)
}

func (v *Verifier) evalModule(name, source string) (*goja.Object, error) {
	wrapped := "(function(module, exports, require) {\n" + source + "\n})"
	prg, err := goja.Compile(name, wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("verifier: compiling module %q: %w", name, err)
	}
	fnVal, err := v.vm.RunProgram(prg)
	if err != nil {
		return nil, fmt.Errorf("verifier: loading module %q: %w", name, err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("verifier: module %q did not compile to a function", name)
	}

	module := v.vm.NewObject()
	exports := v.vm.NewObject()
	_ = module.Set("exports", exports)

	requireFn := func(call goja.FunctionCall) goja.Value {
		reqName := call.Argument(0).String()
		mod, err := v.require(reqName)
		if err != nil {
			panic(v.vm.NewGoError(err))
		}
		return mod
	}

	if _, err := fn(goja.Undefined(), module, exports, v.vm.ToValue(requireFn)); err != nil {
		return nil, fmt.Errorf("verifier: evaluating module %q: %w", name, err)
	}

	result := module.Get("exports").ToObject(v.vm)
	v.modules[name] = result
	return result, nil
}

// bootstrapModules pre-loads every virtual module so the specification
// can require() any of them regardless of load order.
func (v *Verifier) bootstrapModules() error {
	for _, m := range virtualModules {
		if _, err := v.require(m.name); err != nil {
			return err
		}
	}
	return nil
}

// LoadSpecification transpiles (if filename ends in .ts/.tsx) and
// evaluates a specification module, walking its exports into
// registered properties and action generators.
func (v *Verifier) LoadSpecification(filename string, source []byte) error {
	if err := v.bootstrapModules(); err != nil {
		return err
	}

	src := string(source)
	if isTypedVariant(filename) {
		transpiled, err := transpileTypeScript(filename, src)
		if err != nil {
			return fmt.Errorf("verifier: transpiling %s: %w", filename, err)
		}
		src = transpiled
	}

	wrapped := "(function(module, exports, require) {\n" + src + "\n})"
	prg, err := goja.Compile(filename, wrapped, true)
	if err != nil {
		return fmt.Errorf("verifier: compiling specification %s: %w", filename, err)
	}
	fnVal, err := v.vm.RunProgram(prg)
	if err != nil {
		return fmt.Errorf("verifier: loading specification %s: %w", filename, err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return fmt.Errorf("verifier: specification %s did not compile to a function", filename)
	}

	module := v.vm.NewObject()
	exports := v.vm.NewObject()
	_ = module.Set("exports", exports)
	requireFn := func(call goja.FunctionCall) goja.Value {
		reqName := call.Argument(0).String()
		mod, err := v.require(reqName)
		if err != nil {
			panic(v.vm.NewGoError(err))
		}
		return mod
	}
	if _, err := fn(goja.Undefined(), module, exports, v.vm.ToValue(requireFn)); err != nil {
		return fmt.Errorf("verifier: evaluating specification %s: %w", filename, err)
	}

	if err := v.walkExports(module.Get("exports").ToObject(v.vm)); err != nil {
		return err
	}

	return v.registerExtractors()
}

// registerExtractors pulls every extractor accumulated in
// runtimeDefault.extractors during specification load and assigns
// each a monotone id (spec.md §3), mirroring
// _examples/original_source/src/specification/verifier.rs:236-260
// (Extractors::new, register, extract_functions): the original reads
// bombadil_exports.runtime_default.extractors the same way, once,
// right after the export walk.
func (v *Verifier) registerExtractors() error {
	internalMod, err := v.require("@bombadil/internal")
	if err != nil {
		return err
	}

	rdVal := internalMod.Get("runtimeDefault")
	if rdVal == nil || goja.IsUndefined(rdVal) {
		return fmt.Errorf("verifier: internal module missing runtimeDefault")
	}
	rd := rdVal.ToObject(v.vm)

	extractorsVal := rd.Get("extractors")
	if extractorsVal == nil || goja.IsUndefined(extractorsVal) {
		return fmt.Errorf("verifier: runtimeDefault.extractors is missing")
	}
	arr := extractorsVal.ToObject(v.vm)
	length := int(arr.Get("length").ToInteger())

	for i := 0; i < length; i++ {
		item := arr.Get(strconv.Itoa(i))
		obj := item.ToObject(v.vm)
		if obj == nil {
			return fmt.Errorf("verifier: extractor %d is not an object", i)
		}
		extractFn := obj.Get("extract")
		if extractFn == nil || goja.IsUndefined(extractFn) {
			return fmt.Errorf("verifier: extractor %d has no extract function", i)
		}
		v.extractors = append(v.extractors, &extractorHandle{
			id:     uint64(i),
			source: extractFn.String(),
			obj:    obj,
		})
	}

	timeVal := internalMod.Get("time")
	if timeVal == nil || goja.IsUndefined(timeVal) {
		return fmt.Errorf("verifier: internal module missing time")
	}
	v.timeObj = timeVal.ToObject(v.vm)
	return nil
}

// Extractors reports every registered extractor, for the runner to
// re-evaluate against the live page and feed back into Step.
func (v *Verifier) Extractors() []ExtractorInfo {
	out := make([]ExtractorInfo, 0, len(v.extractors))
	for _, e := range v.extractors {
		out = append(out, ExtractorInfo{ID: e.id, Source: e.source})
	}
	return out
}

func isTypedVariant(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".ts" || ext == ".tsx"
}

func transpileTypeScript(filename, source string) (string, error) {
	loader := api.LoaderTS
	if strings.HasSuffix(filename, ".tsx") {
		loader = api.LoaderTSX
	}
	result := api.Transform(source, api.TransformOptions{
		Loader: loader,
		Target: api.ES2020,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%s", result.Errors[0].Text)
	}
	return string(result.Code), nil
}

// walkExports implements spec.md §4.5's export walk: a Formula export
// is normalised to NNF and registered as a property, an
// ActionGenerator export is registered (equal weight), a
// Symbol.toStringTag export is ignored, anything else is a hard
// error.
func (v *Verifier) walkExports(exports *goja.Object) error {
	sawGenerator := false
	for _, key := range exports.Keys() {
		if key == "__esModule" {
			continue
		}
		val := exports.Get(key)
		if val == nil || goja.IsUndefined(val) {
			continue
		}
		if key == "Symbol(Symbol.toStringTag)" {
			continue
		}

		if fn, ok := goja.AssertFunction(val); ok {
			obj := val.ToObject(v.vm)
			if truthy(obj.Get("__isActionGenerator")) {
				v.generators = append(v.generators, fn)
				sawGenerator = true
				continue
			}
			return fmt.Errorf("%w: %q is a function but not an action generator", ErrUnrecognisedExport, key)
		}

		obj := val.ToObject(v.vm)
		if obj != nil && truthy(obj.Get("__isFormula")) {
			f, err := v.walkFormula(val)
			if err != nil {
				return fmt.Errorf("verifier: export %q: %w", key, err)
			}
			v.properties = append(v.properties, &Property{Name: key, residual: Normalize(f)})
			continue
		}

		return fmt.Errorf("%w: %q", ErrUnrecognisedExport, key)
	}
	if !sawGenerator {
		return ErrNoActionGenerator
	}
	return nil
}

func truthy(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) && v.ToBoolean()
}

// walkFormula converts a JS-side plain-object Formula tree (built by
// the internal module) into a Go Formula, wiring Thunk nodes to call
// back into the JS function that produces them.
func (v *Verifier) walkFormula(val goja.Value) (Formula, error) {
	obj := val.ToObject(v.vm)
	if obj == nil {
		return Formula{}, fmt.Errorf("verifier: expected a Formula object")
	}
	kind := obj.Get("kind").String()
	pretty := ""
	if p := obj.Get("pretty"); p != nil && !goja.IsUndefined(p) {
		pretty = p.String()
	}

	sub := func(i int) (Formula, error) {
		arr := obj.Get("sub").ToObject(v.vm)
		return v.walkFormula(arr.Get(fmt.Sprintf("%d", i)))
	}

	switch Kind(kind) {
	case KindPure:
		return Pure(obj.Get("bool").ToBoolean(), pretty), nil
	case KindThunk:
		fnVal := obj.Get("fn")
		callable, ok := goja.AssertFunction(fnVal)
		if !ok {
			return Formula{}, fmt.Errorf("verifier: Thunk node missing a callable fn")
		}
		return Thunk(func() (Formula, error) {
			res, err := callable(goja.Undefined())
			if err != nil {
				return Formula{}, fmt.Errorf("verifier: evaluating thunk %q: %w", pretty, err)
			}
			return v.jsResultToFormula(res, pretty)
		}, pretty), nil
	case KindNot:
		a, err := sub(0)
		if err != nil {
			return Formula{}, err
		}
		return NotF(a), nil
	case KindAnd, KindOr, KindImplies:
		a, err := sub(0)
		if err != nil {
			return Formula{}, err
		}
		b, err := sub(1)
		if err != nil {
			return Formula{}, err
		}
		switch Kind(kind) {
		case KindAnd:
			return AndF(a, b), nil
		case KindOr:
			return OrF(a, b), nil
		default:
			return ImpliesF(a, b), nil
		}
	case KindNext:
		a, err := sub(0)
		if err != nil {
			return Formula{}, err
		}
		return NextF(a), nil
	case KindAlways, KindEventually:
		a, err := sub(0)
		if err != nil {
			return Formula{}, err
		}
		var bound *time.Duration
		if bm := obj.Get("boundMillis"); bm != nil && !goja.IsUndefined(bm) && !goja.IsNull(bm) {
			d := time.Duration(bm.ToInteger()) * time.Millisecond
			bound = &d
		}
		if Kind(kind) == KindAlways {
			return AlwaysF(a, bound, pretty), nil
		}
		return EventuallyF(a, bound, pretty), nil
	default:
		return Formula{}, fmt.Errorf("verifier: unrecognised JS formula kind %q", kind)
	}
}

// jsResultToFormula interprets a Thunk's return value: a boolean is
// wrapped as Pure, anything already tagged __isFormula is walked
// recursively (spec.md §4.5 "expect a Formula").
func (v *Verifier) jsResultToFormula(res goja.Value, pretty string) (Formula, error) {
	if res == nil || goja.IsUndefined(res) {
		return Formula{}, fmt.Errorf("verifier: thunk %q returned undefined", pretty)
	}
	export := res.Export()
	if b, ok := export.(bool); ok {
		return Pure(b, pretty), nil
	}
	obj := res.ToObject(v.vm)
	if obj != nil && truthy(obj.Get("__isFormula")) {
		return v.walkFormula(res)
	}
	return Formula{}, fmt.Errorf("verifier: thunk %q must return a boolean or a Formula", pretty)
}

// StepResult is the outcome of one verifier.Step call.
type StepResult struct {
	Properties []*Property
	Actions    tree.Tree[types.BrowserAction]
}

// Step implements spec.md §4.5's per-snapshot algorithm in full:
// extractor evaluation is the first action of every step (§4.5 step
// 1), updating every registered extractor's current value from the
// already-evaluated results the runner read off the live page via
// Extractors(), before any property is advanced. extracted maps an
// ExtractorInfo.ID to the JSON-decoded value the runner evaluated
// that extractor's source to against the snapshot; an id with no
// entry is updated with undefined, matching a page where the
// extractor's expression didn't resolve.
//
// Grounded on
// _examples/original_source/src/specification/verifier.rs:284-293
// (Verifier::step calling Extractors::update_from_snapshots first, via
// js.rs's update_from_snapshots) and src/runner.rs's run_extractors,
// which is where the actual JS evaluation against the page happens
// before step() is ever called.
func (v *Verifier) Step(extracted map[uint64]interface{}, t time.Time) (StepResult, error) {
	if err := v.updateExtractors(extracted, t); err != nil {
		return StepResult{}, err
	}

	for _, p := range v.properties {
		if p.Definite() {
			continue
		}
		var outcome Outcome
		var err error
		if !p.started {
			p.started = true
			outcome, err = Evaluate(p.residual, t)
		} else {
			outcome, err = Step(p.residual, t)
		}
		if err != nil {
			return StepResult{}, fmt.Errorf("verifier: property %q: %w", p.Name, err)
		}
		switch outcome.Kind {
		case OutcomeTrue:
			p.Status = StatusTrue
		case OutcomeFalse:
			p.Status = StatusFalse
			p.Witness = outcome.Witness
		case OutcomeResidual:
			p.residual = outcome.Residual
		}
	}

	var trees []tree.Tree[types.BrowserAction]
	for _, gen := range v.generators {
		res, err := gen(goja.Undefined())
		if err != nil {
			return StepResult{}, fmt.Errorf("verifier: action generator: %w", err)
		}
		t, err := decodeActionTree(res.Export())
		if err != nil {
			return StepResult{}, fmt.Errorf("%w: %v", ErrBadGeneratorOutput, err)
		}
		trees = append(trees, t)
	}

	return StepResult{Properties: v.properties, Actions: tree.Merge(trees, 1)}, nil
}

// updateExtractors calls update(value, time) on the well-known time
// tracker and every registered extractor, in that order, mirroring
// js.rs's update_from_snapshots: the time tracker is always updated
// first with a null value and the step's timestamp, then each
// extractor is updated with its freshly observed value.
func (v *Verifier) updateExtractors(extracted map[uint64]interface{}, t time.Time) error {
	millis := v.vm.ToValue(t.UnixMilli())

	if v.timeObj != nil {
		if err := callUpdate(v.vm, v.timeObj, goja.Null(), millis); err != nil {
			return fmt.Errorf("verifier: updating time: %w", err)
		}
	}

	for _, e := range v.extractors {
		value, ok := extracted[e.id]
		jsValue := goja.Value(goja.Undefined())
		if ok {
			jsValue = v.vm.ToValue(value)
		}
		if err := callUpdate(v.vm, e.obj, jsValue, millis); err != nil {
			return fmt.Errorf("verifier: updating extractor %d (%s): %w", e.id, e.source, err)
		}
	}
	return nil
}

// callUpdate invokes obj.update(value, t) with this bound to obj, the
// way the original's update_from_snapshots calls extractor.update via
// JsValue::from(extractor.clone()) as the receiver.
func callUpdate(vm *goja.Runtime, obj *goja.Object, value, t goja.Value) error {
	updateVal := obj.Get("update")
	fn, ok := goja.AssertFunction(updateVal)
	if !ok {
		return fmt.Errorf("verifier: update is not callable")
	}
	_, err := fn(obj, value, t)
	return err
}

// AllDefinite reports whether every registered property has a sticky
// True/False outcome (spec.md §4.5 runner-loop stop condition).
func (v *Verifier) AllDefinite() bool {
	for _, p := range v.properties {
		if !p.Definite() {
			return false
		}
	}
	return len(v.properties) > 0
}

// AnyFalse reports whether any property has settled to False, and
// returns the first such property.
func (v *Verifier) AnyFalse() (*Property, bool) {
	for _, p := range v.properties {
		if p.Status == StatusFalse {
			return p, true
		}
	}
	return nil, false
}

// decodeActionTree re-marshals a goja-exported native value (a plain
// map/slice tree produced by the internal module's leaf/branch
// helpers) through encoding/json into the weighted tree shape, which
// is the simplest faithful way to "parse its returned JSON" (spec.md
// §4.5) without round-tripping through JS's own JSON.stringify.
func decodeActionTree(exported interface{}) (tree.Tree[types.BrowserAction], error) {
	raw, err := json.Marshal(exported)
	if err != nil {
		return tree.Tree[types.BrowserAction]{}, err
	}
	var node treeNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return tree.Tree[types.BrowserAction]{}, err
	}
	return node.toTree()
}

type treeNode struct {
	Leaf   *types.BrowserAction `json:"leaf"`
	Branch []branchEntry        `json:"branch"`
}

type branchEntry struct {
	Weight uint16   `json:"weight"`
	Child  treeNode `json:"child"`
}

func (n treeNode) toTree() (tree.Tree[types.BrowserAction], error) {
	if n.Leaf != nil {
		return tree.Leaf(*n.Leaf), nil
	}
	children := make([]tree.WeightedChild[types.BrowserAction], 0, len(n.Branch))
	for _, b := range n.Branch {
		child, err := b.Child.toTree()
		if err != nil {
			return tree.Tree[types.BrowserAction]{}, err
		}
		children = append(children, tree.WeightedChild[types.BrowserAction]{Weight: b.Weight, Child: child})
	}
	return tree.Branch(children), nil
}
