// Package instrument rewrites intercepted script and HTML-document
// bodies to inject coverage-edge counter increments against the
// browser-side ABI described in abi.go.
package instrument

// Namespace is the process-unique global under which the browser-side
// coverage ABI lives. Fixed so the evaluator scripts in the browser
// state machine can read it without coordination.
const Namespace = "__bombadil_cov__"

// DefaultEdgeMapSize is the default size of the current/previous Uint8Array
// pair, a power of two per the edge-map invariant. Runs may override
// it via configuration; the instrumenter takes the active size as a
// parameter rather than hardcoding it so a run can tune memory against
// collision rate.
const DefaultEdgeMapSize = 1 << 16

// bootstrapScript initialises the namespace's current/previous arrays
// the first time any instrumented script runs on a page. It is
// idempotent so it can be prefixed onto every instrumented body.
func bootstrapScript(edgeMapSize int) string {
	return "window." + Namespace + " = window." + Namespace + " || {current: new Uint8Array(" +
		itoa(edgeMapSize) + "), previous: new Uint8Array(" + itoa(edgeMapSize) + ")};"
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
