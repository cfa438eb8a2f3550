package progression

import (
	"errors"
	"testing"

	"github.com/questtime/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestEffectRegistry_AddNumeric(t *testing.T) {
	reg := NewEffectRegistry()
	char := &model.Character{Attributes: datatypes.JSONMap{"focus": float64(3)}}

	assert.Equal(t, EffectAddNumeric, reg.Resolve("focus", float64(2)))
	require.NoError(t, reg.Apply(char, "focus", float64(2)))
	assert.Equal(t, float64(5), char.Attributes["focus"])
}

func TestEffectRegistry_AddNumeric_MissingAttribute(t *testing.T) {
	reg := NewEffectRegistry()
	char := &model.Character{}
	require.NoError(t, reg.Apply(char, "stamina", float64(4)))
	assert.Equal(t, float64(4), char.Attributes["stamina"])
}

func TestEffectRegistry_SetField(t *testing.T) {
	reg := NewEffectRegistry()
	char := &model.Character{Attributes: datatypes.JSONMap{"title": "novice"}}

	assert.Equal(t, EffectSetField, reg.Resolve("title", "adventurer"))
	require.NoError(t, reg.Apply(char, "title", "adventurer"))
	assert.Equal(t, "adventurer", char.Attributes["title"])
}

func TestEffectRegistry_CustomHandler(t *testing.T) {
	reg := NewEffectRegistry()
	var got interface{}
	reg.Register("coins", func(char *model.Character, attr string, value interface{}) error {
		got = value
		char.Coins += int64(value.(float64))
		return nil
	})

	char := &model.Character{Coins: 10}
	assert.Equal(t, EffectCustom, reg.Resolve("coins", float64(5)))
	require.NoError(t, reg.Apply(char, "coins", float64(5)))
	assert.Equal(t, float64(5), got)
	assert.Equal(t, int64(15), char.Coins)
}

func TestEffectRegistry_CustomHandlerError(t *testing.T) {
	reg := NewEffectRegistry()
	boom := errors.New("boom")
	reg.Register("cursed", func(*model.Character, string, interface{}) error { return boom })

	err := reg.Apply(&model.Character{}, "cursed", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestEffectRegistry_ApplyAll(t *testing.T) {
	reg := NewEffectRegistry()
	char := &model.Character{}
	require.NoError(t, reg.ApplyAll(char, map[string]interface{}{
		"focus": float64(2),
		"title": "night owl",
	}))
	assert.Equal(t, float64(2), char.Attributes["focus"])
	assert.Equal(t, "night owl", char.Attributes["title"])
}
