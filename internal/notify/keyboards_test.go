package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputKeyboardSynthesizesNumberedOptions(t *testing.T) {
	lines := []string{
		"Pick a framework:",
		"1. React",
		"2) Vue",
		"3. Svelte",
	}
	kb := InputKeyboard("sess-1", lines)
	require.NotEmpty(t, kb)

	var datas []string
	for _, row := range kb {
		for _, b := range row {
			datas = append(datas, b.Data)
		}
	}
	assert.Contains(t, datas, "pick:sess-1:1")
	assert.Contains(t, datas, "pick:sess-1:2")
	assert.Contains(t, datas, "pick:sess-1:3")
}

func TestInputKeyboardFallsBackToPermissionLayout(t *testing.T) {
	kb := InputKeyboard("sess-1", []string{"What now?"})
	require.NotEmpty(t, kb)
	assert.Equal(t, "perm:allow:sess-1", kb[0][0].Data)
}

func TestSuggestionKeyboardCapsAtThree(t *testing.T) {
	kb := SuggestionKeyboard("s", []string{"a", "b", "c", "d"})
	// Three suggestion rows plus the output row.
	require.Len(t, kb, 4)
	assert.Equal(t, "suggest:s:0", kb[0][0].Data)
	assert.Equal(t, "suggest:s:2", kb[2][0].Data)
}

func TestConfirmKeyboardData(t *testing.T) {
	kb := ConfirmKeyboard("kill", "sess-9")
	require.Len(t, kb, 1)
	assert.Equal(t, "confirm:kill:sess-9", kb[0][0].Data)
	assert.Equal(t, "confirm:cancel:kill:sess-9", kb[0][1].Data)
}
