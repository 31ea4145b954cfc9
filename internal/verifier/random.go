package verifier

import (
	"crypto/rand"
	"fmt"

	"github.com/dop251/goja"
)

// ByteSource draws cryptographically random bytes for the
// __random_bytes builtin (spec.md §4.5). The production source wraps
// crypto/rand; tests inject a replay source so generator output is
// reproducible (spec.md §8 "LTL determinism" extends naturally to
// action-generator determinism under a fixed seed, per §9 open
// question 4's replay-bytes hook).
type ByteSource interface {
	Read(n int) ([]byte, error)
}

// CryptoByteSource draws from crypto/rand.
type CryptoByteSource struct{}

func (CryptoByteSource) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("verifier: crypto/rand read: %w", err)
	}
	return buf, nil
}

// ReplayByteSource replays a fixed byte sequence, cycling if
// exhausted, for deterministic test runs.
type ReplayByteSource struct {
	Bytes  []byte
	offset int
}

func (r *ReplayByteSource) Read(n int) ([]byte, error) {
	if len(r.Bytes) == 0 {
		return nil, fmt.Errorf("verifier: replay byte source is empty")
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = r.Bytes[r.offset%len(r.Bytes)]
		r.offset++
	}
	return out, nil
}

const maxRandomBytes = 4096

func registerRandomBuiltin(vm *goja.Runtime, src ByteSource) {
	vm.Set("__random_bytes", func(call goja.FunctionCall) goja.Value {
		n := int(call.Argument(0).ToInteger())
		if n < 0 || n > maxRandomBytes {
			panic(vm.NewTypeError("__random_bytes: n must be within [0, %d]", maxRandomBytes))
		}
		buf, err := src.Read(n)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		arr := make([]interface{}, len(buf))
		for i, b := range buf {
			arr[i] = int(b)
		}
		return vm.ToValue(arr)
	})
}
