package verifier

// Virtual module sources pre-registered before a specification module
// is evaluated (spec.md §4.5: "a virtual module resolver that
// pre-registers a small set of internal modules"). Each is wrapped in
// a CommonJS-style (module, exports, require) closure by the loader
// in verifier.go (evalModule), mirroring the teacher's preference for small, literal
// JS snippets over pulling in a bundler runtime for this narrow need.
//
// The module names and split between defaults/properties and
// defaults/actions mirror the original's own module graph
// (internal.js, random.js, actions.js, index.js, defaults/actions.js,
// defaults/properties.js, defaults.js).
//
// Import order matters: later modules require earlier ones, so they
// are loaded in this slice's order by (*Verifier).bootstrapModules.
var virtualModules = []struct {
	name   string
	source string
}{
	{"@bombadil/internal", internalModuleSource},
	{"@bombadil/random", randomModuleSource},
	{"@bombadil/actions", actionsModuleSource},
	{"@bombadil/defaults/properties", defaultsPropertiesModuleSource},
	{"@bombadil/defaults/actions", defaultsActionsModuleSource},
	{"@bombadil", indexModuleSource},
}

// internalModuleSource builds the plain-object Formula tree shape the
// Go-side walkFormula interprets, plus the extractor/time registry
// that backs the extract/now combinators (grounded on
// _examples/original_source/src/specification/js.rs's Extractors and
// verifier.rs's runtime_default.extractors array: extractors register
// themselves into a shared array as a side effect of being called
// during module evaluation, then get pulled out and assigned ids once
// the specification module has finished loading). Formula nodes are
// tagged with __isFormula so the export walk in verifier.go can tell
// them apart from an ActionGenerator export without relying on
// cross-realm instanceof.
const internalModuleSource = `
function formulaMixin(node) {
  node.not = function() { return notFormula(node); };
  node.and = function(other) { return andFormula(node, other); };
  node.or = function(other) { return orFormula(node, other); };
  node.implies = function(other) { return impliesFormula(node, other); };
  return node;
}

function normalizeOperand(f, pretty) {
  if (typeof f === "function") {
    return thunkFormula(f, pretty);
  }
  return f;
}

function withinMixin(node) {
  node.within = function(amount, unit) {
    var millis;
    if (unit === "milliseconds") millis = amount;
    else if (unit === "seconds") millis = amount * 1000;
    else throw new Error("unsupported duration unit: " + unit);
    node.boundMillis = millis;
    return node;
  };
  return node;
}

function pureFormula(b, pretty) {
  return formulaMixin({ kind: "Pure", bool: !!b, pretty: pretty || String(!!b), __isFormula: true });
}
function thunkFormula(fn, pretty) {
  return formulaMixin({ kind: "Thunk", fn: fn, pretty: pretty || fn.name || "<thunk>", __isFormula: true });
}
function notFormula(f) {
  return formulaMixin({ kind: "Not", sub: [normalizeOperand(f)], __isFormula: true });
}
function andFormula(a, b) {
  return formulaMixin({ kind: "And", sub: [normalizeOperand(a), normalizeOperand(b)], __isFormula: true });
}
function orFormula(a, b) {
  return formulaMixin({ kind: "Or", sub: [normalizeOperand(a), normalizeOperand(b)], __isFormula: true });
}
function impliesFormula(a, b) {
  return formulaMixin({ kind: "Implies", sub: [normalizeOperand(a), normalizeOperand(b)], __isFormula: true });
}
function nextFormula(f) {
  return formulaMixin({ kind: "Next", sub: [normalizeOperand(f)], __isFormula: true });
}
function alwaysFormula(f, pretty) {
  var node = formulaMixin({ kind: "Always", sub: [normalizeOperand(f, pretty)], boundMillis: null, pretty: pretty || "always", __isFormula: true });
  return withinMixin(node);
}
function eventuallyFormula(f, pretty) {
  var node = formulaMixin({ kind: "Eventually", sub: [normalizeOperand(f, pretty)], boundMillis: null, pretty: pretty || "eventually", __isFormula: true });
  return withinMixin(node);
}

function actionGenerator(fn) {
  fn.__isActionGenerator = true;
  return fn;
}

function leafTree(action) { return { leaf: action }; }
function branchTree(pairs) {
  return { branch: pairs.map(function(p) { return { weight: p[0], child: p[1] }; }) };
}

// runtimeDefault.extractors accumulates every extractor created while
// the specification module (and anything it imports) is evaluated.
// The verifier reads this array exactly once, right after the export
// walk, and assigns each entry a monotone id (spec.md §3).
var runtimeDefault = { extractors: [] };

// time is the one well-known, always-registered "extractor": the
// verifier updates it with the step's timestamp before any
// user-defined extractor is updated, so a thunk can read time.current
// to reason about simulation time.
var time = {
  current: undefined,
  update: function(value, t) { this.current = t; }
};

// extractFormula registers a new extractor: a plain object exposing
// the original extract function (kept around so the Go side can
// stringify it for the runner to re-evaluate against the live page)
// and an update(value, time) method that the verifier calls with the
// freshly read value at the start of every step, before any property
// is advanced.
function extractFormula(fn) {
  var extractor = {
    extract: fn,
    current: undefined,
    update: function(value, t) { this.current = value; }
  };
  runtimeDefault.extractors.push(extractor);
  return extractor;
}

module.exports = {
  pure: pureFormula,
  thunk: thunkFormula,
  not: notFormula,
  and: andFormula,
  or: orFormula,
  implies: impliesFormula,
  next: nextFormula,
  always: alwaysFormula,
  eventually: eventuallyFormula,
  actionGenerator: actionGenerator,
  leaf: leafTree,
  branch: branchTree,
  extract: extractFormula,
  now: thunkFormula,
  time: time,
  runtimeDefault: runtimeDefault,
};
`

const randomModuleSource = `
function bytes(n) {
  if (n > 4096) throw new Error("random.bytes: n must be <= 4096");
  return __random_bytes(n);
}
function int(maxExclusive) {
  var b = bytes(4);
  var v = ((b[0] << 24) | (b[1] << 16) | (b[2] << 8) | b[3]) >>> 0;
  return v % maxExclusive;
}
module.exports = { bytes: bytes, int: int };
`

const actionsModuleSource = `
function back() { return { kind: "Back" }; }
function forward() { return { kind: "Forward" }; }
function reload() { return { kind: "Reload" }; }
function click(name, opts) {
  opts = opts || {};
  return { kind: "Click", name: name, content: opts.content || null, point: opts.point || null };
}
function typeText(text, delayMillis) {
  return { kind: "TypeText", text: text, delay_millis: (delayMillis === undefined ? null : delayMillis) };
}
function pressKey(code) { return { kind: "PressKey", code: code }; }
function scrollUp(distance, origin) { return { kind: "ScrollUp", distance: distance, origin: origin || null }; }
function scrollDown(distance, origin) { return { kind: "ScrollDown", distance: distance, origin: origin || null }; }

module.exports = {
  back: back, forward: forward, reload: reload, click: click,
  typeText: typeText, pressKey: pressKey,
  scrollUp: scrollUp, scrollDown: scrollDown,
};
`

// defaultsPropertiesModuleSource mirrors the original's
// defaults/properties.js: every property/formula combinator,
// including the extract/now/time trio that lets a property observe
// externalised page state (spec.md §3).
const defaultsPropertiesModuleSource = `
var internal = require("@bombadil/internal");
module.exports = {
  pure: internal.pure,
  not: internal.not,
  and: internal.and,
  or: internal.or,
  implies: internal.implies,
  next: internal.next,
  always: internal.always,
  eventually: internal.eventually,
  extract: internal.extract,
  now: internal.now,
  time: internal.time,
};
`

// defaultsActionsModuleSource mirrors the original's
// defaults/actions.js: the action-tree helpers plus the browser
// action constructors specifications build generators out of.
const defaultsActionsModuleSource = `
var internal = require("@bombadil/internal");
var actions = require("@bombadil/actions");

function uniform(items) {
  return internal.branch(items.map(function(a) { return [1, internal.leaf(a)]; }));
}

module.exports = {
  leaf: internal.leaf,
  branch: internal.branch,
  uniform: uniform,
  back: actions.back,
  forward: actions.forward,
  reload: actions.reload,
  click: actions.click,
  typeText: actions.typeText,
  pressKey: actions.pressKey,
  scrollUp: actions.scrollUp,
  scrollDown: actions.scrollDown,
};
`

const indexModuleSource = `
var internal = require("@bombadil/internal");
var random = require("@bombadil/random");
var actions = require("@bombadil/actions");
var defaultsProperties = require("@bombadil/defaults/properties");
var defaultsActions = require("@bombadil/defaults/actions");

module.exports = Object.assign(
  {},
  defaultsProperties,
  defaultsActions,
  {
    actionGenerator: internal.actionGenerator,
    random: random,
    actions: actions,
  }
);
`
