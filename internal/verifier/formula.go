// Package verifier hosts the embedded JS specification context and
// the bounded LTL step evaluator that drives property decisions.
package verifier

import "time"

// Kind tags the Formula union.
type Kind string

const (
	KindPure       Kind = "Pure"
	KindThunk      Kind = "Thunk"
	KindNot        Kind = "Not"
	KindAnd        Kind = "And"
	KindOr         Kind = "Or"
	KindImplies    Kind = "Implies"
	KindNext       Kind = "Next"
	KindAlways     Kind = "Always"
	KindEventually Kind = "Eventually"
)

// Formula is a node in the bounded LTL formula tree (spec.md §3/§4.5).
// Sub holds child formulas per Kind: Not/Next/Always/Eventually take
// one, And/Or/Implies take two, Pure/Thunk take none.
type Formula struct {
	Kind Kind

	Pretty string

	// Pure
	Bool bool

	// Thunk: Fn is re-evaluated every time this node is stepped.
	// Negated records that an odd number of Not wrappers have been
	// pushed onto it during NNF normalisation; since the formula Fn
	// returns is unknown until evaluated, negation can't be pushed any
	// further and is carried as a flag instead.
	Fn      func() (Formula, error)
	Negated bool

	Sub []Formula

	// Always / Eventually
	Bound    *time.Duration
	Deadline *time.Time
}

// Pure builds a constant-valued leaf.
func Pure(b bool, pretty string) Formula {
	return Formula{Kind: KindPure, Bool: b, Pretty: pretty}
}

// Thunk builds a formula whose value is produced by calling fn at
// each step it is evaluated.
func Thunk(fn func() (Formula, error), pretty string) Formula {
	return Formula{Kind: KindThunk, Fn: fn, Pretty: pretty}
}

// NotF negates a formula.
func NotF(f Formula) Formula { return Formula{Kind: KindNot, Sub: []Formula{f}} }

// AndF conjoins two formulas.
func AndF(a, b Formula) Formula { return Formula{Kind: KindAnd, Sub: []Formula{a, b}} }

// OrF disjoins two formulas.
func OrF(a, b Formula) Formula { return Formula{Kind: KindOr, Sub: []Formula{a, b}} }

// ImpliesF builds a -> b.
func ImpliesF(a, b Formula) Formula { return Formula{Kind: KindImplies, Sub: []Formula{a, b}} }

// NextF defers f to the following step.
func NextF(f Formula) Formula { return Formula{Kind: KindNext, Sub: []Formula{f}} }

// AlwaysF requires f to hold at every step up to the optional bound.
func AlwaysF(f Formula, bound *time.Duration, pretty string) Formula {
	return Formula{Kind: KindAlways, Sub: []Formula{f}, Bound: bound, Pretty: pretty}
}

// EventuallyF requires f to hold at some step up to the optional bound.
func EventuallyF(f Formula, bound *time.Duration, pretty string) Formula {
	return Formula{Kind: KindEventually, Sub: []Formula{f}, Bound: bound, Pretty: pretty}
}

// OutcomeKind tags the result of evaluating a formula against one snapshot.
type OutcomeKind int

const (
	OutcomeTrue OutcomeKind = iota
	OutcomeFalse
	OutcomeResidual
)

// Outcome is the result of one evaluation step.
type Outcome struct {
	Kind     OutcomeKind
	Witness  string
	Residual Formula
}

func trueOutcome() Outcome { return Outcome{Kind: OutcomeTrue} }

func falseOutcome(witness string) Outcome { return Outcome{Kind: OutcomeFalse, Witness: witness} }

func residualOutcome(f Formula) Outcome { return Outcome{Kind: OutcomeResidual, Residual: f} }

// Normalize rewrites f into negation normal form, pushing Not down to
// Pure/Thunk leaves (spec.md glossary: NNF).
func Normalize(f Formula) Formula {
	switch f.Kind {
	case KindNot:
		return normalizeNot(f.Sub[0])
	case KindAnd:
		return AndF(Normalize(f.Sub[0]), Normalize(f.Sub[1]))
	case KindOr:
		return OrF(Normalize(f.Sub[0]), Normalize(f.Sub[1]))
	case KindImplies:
		return Formula{Kind: KindImplies, Sub: []Formula{Normalize(f.Sub[0]), Normalize(f.Sub[1])}, Pretty: f.Pretty}
	case KindNext:
		return Formula{Kind: KindNext, Sub: []Formula{Normalize(f.Sub[0])}, Pretty: f.Pretty}
	case KindAlways:
		g := f
		g.Sub = []Formula{Normalize(f.Sub[0])}
		return g
	case KindEventually:
		g := f
		g.Sub = []Formula{Normalize(f.Sub[0])}
		return g
	default: // Pure, Thunk
		return f
	}
}

// normalizeNot applies De Morgan's laws and LTL duality to push a Not
// that sits directly above f one level further down.
func normalizeNot(f Formula) Formula {
	switch f.Kind {
	case KindPure:
		return Pure(!f.Bool, f.Pretty)
	case KindThunk:
		g := f
		g.Negated = !g.Negated
		return g
	case KindNot:
		return Normalize(f.Sub[0])
	case KindAnd:
		return OrF(normalizeNot(f.Sub[0]), normalizeNot(f.Sub[1]))
	case KindOr:
		return AndF(normalizeNot(f.Sub[0]), normalizeNot(f.Sub[1]))
	case KindImplies:
		// not(a -> b) == a and not(b)
		return AndF(Normalize(f.Sub[0]), normalizeNot(f.Sub[1]))
	case KindNext:
		return Formula{Kind: KindNext, Sub: []Formula{normalizeNot(f.Sub[0])}, Pretty: f.Pretty}
	case KindAlways:
		return Formula{Kind: KindEventually, Sub: []Formula{normalizeNot(f.Sub[0])}, Bound: f.Bound, Pretty: f.Pretty}
	case KindEventually:
		return Formula{Kind: KindAlways, Sub: []Formula{normalizeNot(f.Sub[0])}, Bound: f.Bound, Pretty: f.Pretty}
	default:
		return NotF(Normalize(f))
	}
}

// Evaluate normalises and evaluates a freshly registered property's
// formula against the first snapshot's timestamp.
func Evaluate(f Formula, t time.Time) (Outcome, error) {
	return Eval(Normalize(f), t)
}

// Step evaluates a residual formula carried over from a prior step.
func Step(residual Formula, t time.Time) (Outcome, error) {
	return Eval(residual, t)
}

// Eval performs one step of the formula evaluator (spec.md §4.5 "LTL
// semantics"). f is expected to already be in NNF.
func Eval(f Formula, t time.Time) (Outcome, error) {
	switch f.Kind {
	case KindPure:
		if f.Bool {
			return trueOutcome(), nil
		}
		return falseOutcome(f.Pretty), nil

	case KindThunk:
		res, err := f.Fn()
		if err != nil {
			return Outcome{}, err
		}
		if f.Negated {
			res = NotF(res)
		}
		return Eval(Normalize(res), t)

	case KindNot:
		// NNF should have eliminated top-level Not above anything but a
		// Thunk already handled above; defensive fallback for formulas
		// constructed outside Normalize.
		sub, err := Eval(f.Sub[0], t)
		if err != nil {
			return Outcome{}, err
		}
		switch sub.Kind {
		case OutcomeTrue:
			return falseOutcome(f.Pretty), nil
		case OutcomeFalse:
			return trueOutcome(), nil
		default:
			return residualOutcome(NotF(sub.Residual)), nil
		}

	case KindAnd:
		a, err := Eval(f.Sub[0], t)
		if err != nil {
			return Outcome{}, err
		}
		if a.Kind == OutcomeFalse {
			return a, nil
		}
		b, err := Eval(f.Sub[1], t)
		if err != nil {
			return Outcome{}, err
		}
		if b.Kind == OutcomeFalse {
			return b, nil
		}
		if a.Kind == OutcomeTrue && b.Kind == OutcomeTrue {
			return trueOutcome(), nil
		}
		var live []Formula
		if a.Kind == OutcomeResidual {
			live = append(live, a.Residual)
		}
		if b.Kind == OutcomeResidual {
			live = append(live, b.Residual)
		}
		if len(live) == 1 {
			return residualOutcome(live[0]), nil
		}
		return residualOutcome(AndF(live[0], live[1])), nil

	case KindOr:
		a, err := Eval(f.Sub[0], t)
		if err != nil {
			return Outcome{}, err
		}
		if a.Kind == OutcomeTrue {
			return a, nil
		}
		b, err := Eval(f.Sub[1], t)
		if err != nil {
			return Outcome{}, err
		}
		if b.Kind == OutcomeTrue {
			return b, nil
		}
		if a.Kind == OutcomeFalse && b.Kind == OutcomeFalse {
			return falseOutcome(f.Pretty), nil
		}
		var live []Formula
		if a.Kind == OutcomeResidual {
			live = append(live, a.Residual)
		}
		if b.Kind == OutcomeResidual {
			live = append(live, b.Residual)
		}
		if len(live) == 1 {
			return residualOutcome(live[0]), nil
		}
		return residualOutcome(OrF(live[0], live[1])), nil

	case KindImplies:
		notA := normalizeNot(f.Sub[0])
		return Eval(OrF(notA, f.Sub[1]), t)

	case KindNext:
		// Deferred wholesale: the inner formula is evaluated for the
		// first time on the following snapshot.
		return residualOutcome(f.Sub[0]), nil

	case KindAlways:
		deadline := f.Deadline
		if f.Bound != nil && deadline == nil {
			d := t.Add(*f.Bound)
			deadline = &d
		}
		sub, err := Eval(f.Sub[0], t)
		if err != nil {
			return Outcome{}, err
		}
		if sub.Kind == OutcomeFalse {
			witness := "Always{" + sub.Witness
			if f.Pretty != "" {
				witness += ", " + f.Pretty
			}
			witness += "}"
			return falseOutcome(witness), nil
		}
		if deadline != nil && t.After(*deadline) {
			return trueOutcome(), nil
		}
		return residualOutcome(Formula{Kind: KindAlways, Sub: []Formula{f.Sub[0]}, Bound: f.Bound, Deadline: deadline, Pretty: f.Pretty}), nil

	case KindEventually:
		deadline := f.Deadline
		if f.Bound != nil && deadline == nil {
			d := t.Add(*f.Bound)
			deadline = &d
		}
		sub, err := Eval(f.Sub[0], t)
		if err != nil {
			return Outcome{}, err
		}
		if sub.Kind == OutcomeTrue {
			return trueOutcome(), nil
		}
		if deadline != nil && t.After(*deadline) {
			return falseOutcome("Eventually{" + f.Pretty + "}"), nil
		}
		return residualOutcome(Formula{Kind: KindEventually, Sub: []Formula{f.Sub[0]}, Bound: f.Bound, Deadline: deadline, Pretty: f.Pretty}), nil

	default:
		return Outcome{}, errUnknownKind(f.Kind)
	}
}
