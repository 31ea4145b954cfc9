package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAMLUnmarshal(t *testing.T) {
	var d Duration
	err := yaml.Unmarshal([]byte(`"1500ms"`), &d)
	assert.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d.D())
}

func TestDuration_InvalidYAML(t *testing.T) {
	var d Duration
	err := yaml.Unmarshal([]byte(`"not-a-duration"`), &d)
	assert.Error(t, err)
}

func TestBrowserAction_ActionTimeout(t *testing.T) {
	tests := []struct {
		name     string
		action   BrowserAction
		expected time.Duration
	}{
		{"back", BrowserAction{Kind: ActionBack}, 2 * time.Second},
		{"forward", BrowserAction{Kind: ActionForward}, 2 * time.Second},
		{"reload", BrowserAction{Kind: ActionReload}, 2 * time.Second},
		{"click", BrowserAction{Kind: ActionClick}, 500 * time.Millisecond},
		{"press key", BrowserAction{Kind: ActionPressKey}, 50 * time.Millisecond},
		{"scroll up", BrowserAction{Kind: ActionScrollUp}, 100 * time.Millisecond},
		{"scroll down", BrowserAction{Kind: ActionScrollDown}, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.action.ActionTimeout())
		})
	}
}

func TestBrowserAction_TypeTextTimeout_DefaultDelay(t *testing.T) {
	a := BrowserAction{Kind: ActionTypeText, Text: "hello"}
	assert.Equal(t, DefaultTypeTextDelay, a.EffectiveDelay())
	assert.Equal(t, DefaultTypeTextDelay*5+100*time.Millisecond, a.ActionTimeout())
}

func TestBrowserAction_TypeTextTimeout_ExplicitDelay(t *testing.T) {
	delay := int64(10)
	a := BrowserAction{Kind: ActionTypeText, Text: "ab", DelayMillis: &delay}
	assert.Equal(t, 10*time.Millisecond, a.EffectiveDelay())
	assert.Equal(t, 10*time.Millisecond*2+100*time.Millisecond, a.ActionTimeout())
}
