package runner

import (
	"time"

	"github.com/bombadil/exerciser/pkg/types"
)

// RunEventKind tags the Runner's emitted event stream.
type RunEventKind string

const (
	// RunEventNewState is emitted once per processed snapshot
	// (spec.md §4.5 runner loop: "emit RunEvent::NewState").
	RunEventNewState RunEventKind = "NewState"
)

// PropertyOutcome summarises one property's status at a given step,
// for logging and trace output.
type PropertyOutcome struct {
	Name    string
	Status  string
	Witness string
}

// RunEvent is one observable step of the runner loop.
type RunEvent struct {
	Kind           RunEventKind
	Timestamp      time.Time
	State          *types.BrowserState
	Properties     []PropertyOutcome
	CoverageEdges  int
	NewEdges       int
	DispatchedNext *types.BrowserAction
}
