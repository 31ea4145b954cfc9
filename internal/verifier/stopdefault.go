package verifier

// StopDefault computes the terminal-decision default for a residual
// formula: the verdict it would resolve to if the run stopped now,
// with no further snapshots. An Always-style obligation defaults true
// (nothing further can violate it once stopped), an Eventually-style
// obligation defaults false (it hasn't been satisfied yet, and never
// will be if nothing more happens), and the boolean combinators
// compose their operands' defaults the ordinary way.
//
// Grounded on the stop/stop_default test helper exercised throughout
// _examples/original_source/src/specification/verifier.rs's test
// module (e.g. test_property_evaluation_always,
// test_property_evaluation_eventually): that file imports
// stop_default from a sibling stop module not present in this pack,
// so the exact composition rules below for And/Or/Implies/Thunk are
// this student's own, built to satisfy the same Always-true /
// Eventually-false defaults the available tests assert on.
func StopDefault(f Formula) (bool, string) {
	switch f.Kind {
	case KindPure:
		return f.Bool, f.Pretty

	case KindThunk:
		// Not yet evaluated against any snapshot: nothing has failed,
		// so default optimistically to true (matches a freshly
		// shifted Next residual, which is exactly a bare Thunk).
		return true, f.Pretty

	case KindNot:
		v, w := StopDefault(f.Sub[0])
		return !v, w

	case KindAnd:
		a, wa := StopDefault(f.Sub[0])
		if !a {
			return false, wa
		}
		b, wb := StopDefault(f.Sub[1])
		return b, wb

	case KindOr:
		a, wa := StopDefault(f.Sub[0])
		if a {
			return true, ""
		}
		b, wb := StopDefault(f.Sub[1])
		if b {
			return true, ""
		}
		return false, wa + ", " + wb

	case KindImplies:
		a, _ := StopDefault(f.Sub[0])
		if !a {
			return true, ""
		}
		return StopDefault(f.Sub[1])

	case KindNext:
		return true, f.Pretty

	case KindAlways:
		return true, "Always{" + f.Pretty + "}"

	case KindEventually:
		return false, "Eventually{" + f.Pretty + "}"

	default:
		return true, ""
	}
}
