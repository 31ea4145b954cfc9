// Package types holds the data model shared across the exerciser's
// subsystems: browser snapshots, actions, coverage deltas, and the
// extended YAML duration type used by configuration.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with YAML/JSON (un)marshaling support,
// mirroring the teacher's extended-duration config fields.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string, got %s", string(data))
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// D returns the underlying time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// ScreenshotFormat tags the encoding of a captured screenshot.
type ScreenshotFormat string

const (
	ScreenshotWebP ScreenshotFormat = "webp"
	ScreenshotPNG  ScreenshotFormat = "png"
	ScreenshotJPEG ScreenshotFormat = "jpeg"
)

// Screenshot is an opaque, tagged-format image capture.
type Screenshot struct {
	Format ScreenshotFormat `json:"format"`
	Bytes  []byte           `json:"bytes"`
}

// ResourceKind distinguishes the two intercepted CDP resource types.
type ResourceKind string

const (
	ResourceScript   ResourceKind = "Script"
	ResourceDocument ResourceKind = "Document"
)

// EdgeBucket is one (edge_index, bucket) pair in a CoverageDelta.
type EdgeBucket struct {
	Index  uint32 `json:"index"`
	Bucket uint8  `json:"bucket"`
}

// CoverageDelta is the set of edges whose bucketed count changed
// between successive snapshots.
type CoverageDelta []EdgeBucket

// ConsoleEntry is one drained console API call (warning/error level only).
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ExceptionEntry is one drained Runtime.exceptionThrown event.
type ExceptionEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NavigationHistory splits the browser's navigation entries around the
// current entry; about:blank entries are filtered out.
type NavigationHistory struct {
	Back    []string `json:"back"`
	Current string   `json:"current"`
	Forward []string `json:"forward"`
}

// BrowserState is one observed snapshot of page state.
type BrowserState struct {
	Timestamp      time.Time          `json:"timestamp"`
	URL            string             `json:"url"`
	Title          string             `json:"title"`
	ContentType    string             `json:"content_type"`
	ConsoleEntries []ConsoleEntry     `json:"console_entries"`
	Navigation     NavigationHistory  `json:"navigation_history"`
	Exceptions     []ExceptionEntry   `json:"exceptions"`
	TransitionHash *uint64            `json:"transition_hash,omitempty"`
	Coverage       CoverageDelta      `json:"coverage"`
	Screenshot     Screenshot         `json:"screenshot"`
}

// ActionKind tags the BrowserAction union.
type ActionKind string

const (
	ActionBack       ActionKind = "Back"
	ActionForward    ActionKind = "Forward"
	ActionReload     ActionKind = "Reload"
	ActionClick      ActionKind = "Click"
	ActionTypeText   ActionKind = "TypeText"
	ActionPressKey   ActionKind = "PressKey"
	ActionScrollUp   ActionKind = "ScrollUp"
	ActionScrollDown ActionKind = "ScrollDown"
)

// Point is a 2D page-relative click coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BrowserAction is the tagged union of dispatchable interactions. Only
// the fields relevant to Kind are populated; this mirrors the
// teacher's preference for a closed tagged union over open dispatch.
type BrowserAction struct {
	Kind ActionKind `json:"kind"`

	// Click
	Name    string  `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
	Point   *Point  `json:"point,omitempty"`

	// TypeText
	Text        string `json:"text,omitempty"`
	DelayMillis *int64 `json:"delay_millis,omitempty"`

	// PressKey
	Code uint8 `json:"code,omitempty"`

	// ScrollUp / ScrollDown
	Origin   *Point `json:"origin,omitempty"`
	Distance int64  `json:"distance,omitempty"`
}

// DefaultTypeTextDelay is used when delay_millis is absent from a
// TypeText action, per the spec's open question on older spec files
// that omit the field.
const DefaultTypeTextDelay = 25 * time.Millisecond

// EffectiveDelay returns DelayMillis as a time.Duration, defaulting to
// DefaultTypeTextDelay when unset.
func (a BrowserAction) EffectiveDelay() time.Duration {
	if a.DelayMillis == nil {
		return DefaultTypeTextDelay
	}
	return time.Duration(*a.DelayMillis) * time.Millisecond
}

// ActionTimeout returns the per-action dispatch timeout schedule from
// spec.md §4.4.
func (a BrowserAction) ActionTimeout() time.Duration {
	switch a.Kind {
	case ActionBack, ActionForward, ActionReload:
		return 2 * time.Second
	case ActionClick:
		return 500 * time.Millisecond
	case ActionTypeText:
		return a.EffectiveDelay()*time.Duration(len([]rune(a.Text))) + 100*time.Millisecond
	case ActionPressKey:
		return 50 * time.Millisecond
	case ActionScrollUp, ActionScrollDown:
		return 100 * time.Millisecond
	default:
		return time.Second
	}
}
