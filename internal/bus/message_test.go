package bus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageReply(t *testing.T) {
	orig := NewMessage("recognizer_loop:utterance", map[string]any{
		"utterances": []any{"set a timer"},
	})
	orig.Context["ident"] = "abc-123"
	orig.Context["source"] = "audio"

	reply := orig.Reply("timer.intent", map[string]any{"duration": "5m"})

	t.Run("context is preserved", func(t *testing.T) {
		if diff := cmp.Diff(orig.Context, reply.Context); diff != "" {
			t.Errorf("context mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("context is a copy", func(t *testing.T) {
		reply.Context["source"] = "skills"
		assert.Equal(t, "audio", orig.Context["source"])
	})

	t.Run("data is replaced", func(t *testing.T) {
		assert.Equal(t, "5m", reply.Data["duration"])
		assert.NotContains(t, reply.Data, "utterances")
	})
}

func TestMessageForward(t *testing.T) {
	orig := NewMessage("recognizer_loop:utterance", map[string]any{"lang": "en-us"})
	orig.Context["ident"] = "xyz"

	fwd := orig.Forward("complete_intent_failure")

	assert.Equal(t, "complete_intent_failure", fwd.Type)
	assert.Equal(t, "en-us", fwd.Data["lang"])
	assert.Equal(t, "xyz", fwd.Context["ident"])
}

func TestMessageSerializeRoundTrip(t *testing.T) {
	orig := NewMessage("speak", map[string]any{"utterance": "hello"})
	orig.Context["client_name"] = "aura.intent"

	raw, err := orig.Serialize()
	require.NoError(t, err)

	got, err := Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, orig.Type, got.Type)
	assert.Equal(t, "hello", got.Data["utterance"])
	assert.Equal(t, "aura.intent", got.Context["client_name"])
}

func TestDeserializeRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{nope"},
		{"missing type", `{"data": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestEnsureIdent(t *testing.T) {
	m := NewMessage("skill.converse.request", nil)
	id := m.EnsureIdent()
	require.NotEmpty(t, id)

	// A second call keeps the existing ident.
	assert.Equal(t, id, m.EnsureIdent())
}
