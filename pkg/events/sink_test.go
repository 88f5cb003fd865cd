package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESink_Framing(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSSESink(&buf)

	require.NoError(t, sink.Emit(Event{Type: TypeStage1Start}))
	require.NoError(t, sink.Emit(Event{Type: TypeTitleComplete, Title: "A title"}))

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 2)

	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &decoded))
		assert.NotEmpty(t, decoded["type"])
	}

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &second))
	assert.Equal(t, "title_complete", second["type"])
	assert.Equal(t, "A title", second["title"])
}

func TestSSESink_OmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSSESink(&buf)
	require.NoError(t, sink.Emit(Event{Type: TypeStage2Start}))

	line := strings.TrimSpace(strings.TrimPrefix(buf.String(), "data: "))
	assert.Equal(t, `{"type":"stage2_start"}`, line)
}

func TestCollector_RecordsInOrder(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Emit(Event{Type: TypeStage1Start}))
	require.NoError(t, c.Emit(Event{Type: TypeComplete}))

	assert.Equal(t, []Type{TypeStage1Start, TypeComplete}, c.Types())

	got := c.Events()
	require.Len(t, got, 2)
	got[0].Type = TypeError
	assert.Equal(t, TypeStage1Start, c.Events()[0].Type, "Events returns a copy")
}
