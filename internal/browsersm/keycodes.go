package browsersm

import "fmt"

// keyRecord is the (code, key, text) triple CDP needs to synthesize a
// key press. text is non-empty only for Enter, matching how a real
// keyboard event carries typed text alongside its key name.
type keyRecord struct {
	name string
	text string
}

// supportedKeys is the closed set of key codes §6 requires the
// dispatcher to support; PressKey with any other code is an action
// failure, not a panic.
var supportedKeys = map[uint8]keyRecord{
	8:  {name: "Backspace"},
	9:  {name: "Tab"},
	13: {name: "Enter", text: "\r"},
	27: {name: "Escape"},
	37: {name: "ArrowLeft"},
	38: {name: "ArrowUp"},
	39: {name: "ArrowRight"},
	40: {name: "ArrowDown"},
}

func lookupKey(code uint8) (keyRecord, error) {
	k, ok := supportedKeys[code]
	if !ok {
		return keyRecord{}, fmt.Errorf("browsersm: unsupported key code %d", code)
	}
	return k, nil
}
