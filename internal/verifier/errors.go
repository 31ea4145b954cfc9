package verifier

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActionGenerator is returned when a specification exports no
	// ActionGenerator (spec.md §4.5: "must export at least one").
	ErrNoActionGenerator = errors.New("verifier: specification exports no action generator")

	// ErrUnrecognisedExport is returned for a specification export that
	// is neither a Formula nor an ActionGenerator instance.
	ErrUnrecognisedExport = errors.New("verifier: unrecognised specification export")

	// ErrBadGeneratorOutput is returned when an action generator's
	// return value does not parse as a weighted action tree.
	ErrBadGeneratorOutput = errors.New("verifier: action generator returned an unparsable tree")
)

func errUnknownKind(k Kind) error {
	return fmt.Errorf("verifier: unknown formula kind %q", k)
}
