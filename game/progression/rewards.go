package progression

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/questtime/server/model"
	"gorm.io/datatypes"
)

// EffectKind tags how a dynamic reward value is applied to a character.
type EffectKind int

const (
	// EffectAddNumeric adds the delta to a numeric character attribute.
	EffectAddNumeric EffectKind = iota
	// EffectSetField overwrites a non-numeric character attribute.
	EffectSetField
	// EffectCustom dispatches to a registered handler.
	EffectCustom
)

// EffectHandler applies one custom reward effect to a character.
type EffectHandler func(char *model.Character, attribute string, value interface{}) error

// EffectRegistry resolves dynamic reward attributes to their application
// behavior. Attributes with a registered handler use EffectCustom; other
// numeric values fall back to EffectAddNumeric, and everything else to
// EffectSetField.
type EffectRegistry struct {
	mu       sync.RWMutex
	handlers map[string]EffectHandler
}

// NewEffectRegistry creates an empty EffectRegistry.
func NewEffectRegistry() *EffectRegistry {
	return &EffectRegistry{handlers: make(map[string]EffectHandler)}
}

// Register installs a custom handler for the given attribute name.
func (r *EffectRegistry) Register(attribute string, fn EffectHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[attribute] = fn
}

// Resolve returns the effect kind that Apply would use for the value.
func (r *EffectRegistry) Resolve(attribute string, value interface{}) EffectKind {
	r.mu.RLock()
	_, custom := r.handlers[attribute]
	r.mu.RUnlock()
	if custom {
		return EffectCustom
	}
	if _, ok := asFloat(value); ok {
		return EffectAddNumeric
	}
	return EffectSetField
}

// Apply applies a single dynamic reward to the character's attributes map.
func (r *EffectRegistry) Apply(char *model.Character, attribute string, value interface{}) error {
	r.mu.RLock()
	fn, custom := r.handlers[attribute]
	r.mu.RUnlock()

	if custom {
		if err := fn(char, attribute, value); err != nil {
			return fmt.Errorf("reward effect %q: %w", attribute, err)
		}
		return nil
	}

	if char.Attributes == nil {
		char.Attributes = datatypes.JSONMap{}
	}
	if delta, ok := asFloat(value); ok {
		current, _ := asFloat(char.Attributes[attribute])
		char.Attributes[attribute] = current + delta
		return nil
	}
	char.Attributes[attribute] = value
	return nil
}

// ApplyAll applies every entry of a dynamic_rewards map in one pass.
func (r *EffectRegistry) ApplyAll(char *model.Character, rewards map[string]interface{}) error {
	for attr, val := range rewards {
		if err := r.Apply(char, attr, val); err != nil {
			return err
		}
	}
	return nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
