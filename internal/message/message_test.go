// ABOUTME: Tests for chat message parsing and field access
// ABOUTME: Verifies arrays of objects are required and unknown fields pass through

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessages(t *testing.T) {
	msgs, err := ParseMessages([]byte(`[{"role":"user","content":"hi","extra":{"a":[1,2]}}, {"role":"assistant"}]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"role":"user","content":"hi","extra":{"a":[1,2]}}`, string(msgs[0]))

	empty, err := ParseMessages([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, "[]", string(MarshalMessages(empty)))
}

func TestParseMessages_Invalid(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`{"role":"user"}`,
		`"[]"`,
		`[1,2]`,
		`[{"role":"user"}, "text"]`,
	} {
		_, err := ParseMessages([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedMessage, "input %q", raw)
	}
}

func TestChatMessage_Content(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`{"content":"hello"}`, "hello", false},
		{`{"content":""}`, "", false},
		{`{"content":null}`, "", false},
		{`{"role":"user"}`, "", false},
		{`{"content":42}`, "", true},
		{`{"content":[{"type":"text","text":"hi"}]}`, "", true},
	}

	for _, tt := range tests {
		got, err := ChatMessage(tt.raw).Content()
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformedMessage, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestChatMessage_Attachments(t *testing.T) {
	m := ChatMessage(`{"experimental_attachments":[{"name":"a.pdf","contentType":"application/pdf"},{"name":"b.png","contentType":"image/png","url":"https://x/b.png"}]}`)

	atts, err := m.Attachments()
	require.NoError(t, err)
	require.Len(t, atts, 2)
	assert.True(t, atts[0].IsPDF())
	assert.False(t, atts[1].IsPDF())
	assert.Equal(t, "https://x/b.png", atts[1].URL)
	assert.JSONEq(t, `{"name":"b.png","contentType":"image/png","url":"https://x/b.png"}`, atts[1].Raw())

	none, err := ChatMessage(`{"content":"x"}`).Attachments()
	require.NoError(t, err)
	assert.Empty(t, none)
}
