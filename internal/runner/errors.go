package runner

import "errors"

var (
	// ErrNoActionAvailable is returned when the pruned action tree has
	// no leaves to pick from (spec.md §4.5: "fail if empty").
	ErrNoActionAvailable = errors.New("runner: no action available to dispatch")
)
