package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	t.Run("should be deterministic regardless of key order", func(t *testing.T) {
		a := Generate(map[string]any{
			"name":      "Lightning Bolt",
			"mana_cost": "{R}",
			"cmc":       1.0,
		})
		b := Generate(map[string]any{
			"cmc":       1.0,
			"mana_cost": "{R}",
			"name":      "Lightning Bolt",
		})

		assert.Equal(t, a, b)
	})

	t.Run("should change when a value changes", func(t *testing.T) {
		a := Generate(map[string]any{"name": "Lightning Bolt", "cmc": 1.0})
		b := Generate(map[string]any{"name": "Lightning Bolt", "cmc": 2.0})

		assert.NotEqual(t, a, b)
	})

	t.Run("should produce a 64 char hex digest", func(t *testing.T) {
		hash := Generate(map[string]any{"name": "Counterspell"})

		assert.Len(t, hash, 64)
	})

	t.Run("should canonicalize nested maps and arrays", func(t *testing.T) {
		a := Generate(map[string]any{
			"legalities": map[string]any{"modern": "legal", "legacy": "legal"},
			"colors":     []any{"U", "R"},
		})
		b := Generate(map[string]any{
			"colors":     []any{"U", "R"},
			"legalities": map[string]any{"legacy": "legal", "modern": "legal"},
		})

		assert.Equal(t, a, b)
	})

	t.Run("should be order sensitive for arrays", func(t *testing.T) {
		a := Generate(map[string]any{"colors": []any{"U", "R"}})
		b := Generate(map[string]any{"colors": []any{"R", "U"}})

		assert.NotEqual(t, a, b)
	})
}

func TestGenerateWithFields(t *testing.T) {
	t.Run("should ignore fields outside the list", func(t *testing.T) {
		fields := []string{"name", "oracle_text"}

		a := GenerateWithFields(map[string]any{
			"name":        "Brainstorm",
			"oracle_text": "Draw three cards...",
			"prices":      map[string]any{"usd": "1.50"},
		}, fields)
		b := GenerateWithFields(map[string]any{
			"name":        "Brainstorm",
			"oracle_text": "Draw three cards...",
			"prices":      map[string]any{"usd": "2.00"},
		}, fields)

		assert.Equal(t, a, b)
	})

	t.Run("should drop missing and null fields", func(t *testing.T) {
		fields := []string{"name", "power"}

		a := GenerateWithFields(map[string]any{"name": "Brainstorm"}, fields)
		b := GenerateWithFields(map[string]any{"name": "Brainstorm", "power": nil}, fields)

		assert.Equal(t, a, b)
	})

	t.Run("should treat nil pointers as absent", func(t *testing.T) {
		fields := []string{"name", "power"}

		var power *string
		a := GenerateWithFields(map[string]any{"name": "Tarmogoyf", "power": power}, fields)
		b := GenerateWithFields(map[string]any{"name": "Tarmogoyf"}, fields)

		assert.Equal(t, a, b)
	})

	t.Run("should change when a field gains a value", func(t *testing.T) {
		fields := []string{"name", "power"}

		a := GenerateWithFields(map[string]any{"name": "Tarmogoyf"}, fields)
		b := GenerateWithFields(map[string]any{"name": "Tarmogoyf", "power": "*"}, fields)

		assert.NotEqual(t, a, b)
	})

	t.Run("should detect changes inside listed fields", func(t *testing.T) {
		fields := []string{"name", "prices"}

		a := GenerateWithFields(map[string]any{
			"name":   "Brainstorm",
			"prices": map[string]any{"usd": "1.50"},
		}, fields)
		b := GenerateWithFields(map[string]any{
			"name":   "Brainstorm",
			"prices": map[string]any{"usd": "2.00"},
		}, fields)

		assert.NotEqual(t, a, b)
	})
}

func TestGenerateFromJSON(t *testing.T) {
	t.Run("should match Generate for equivalent data", func(t *testing.T) {
		raw := json.RawMessage(`{"name":"Dark Ritual","cmc":1}`)

		fromJSON, err := GenerateFromJSON(raw)
		assert.NoError(t, err)

		direct := Generate(map[string]any{"name": "Dark Ritual", "cmc": 1.0})
		assert.Equal(t, direct, fromJSON)
	})

	t.Run("should return error for invalid json", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`{invalid`))

		assert.Error(t, err)
	})
}

func TestHasChanged(t *testing.T) {
	t.Run("should report identical fingerprints as unchanged", func(t *testing.T) {
		hash := Generate(map[string]any{"name": "Swamp"})

		assert.False(t, HasChanged(hash, hash))
	})

	t.Run("should report different fingerprints as changed", func(t *testing.T) {
		assert.True(t, HasChanged("aaa", "bbb"))
	})
}
