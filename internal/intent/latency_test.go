package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/internal/bus"
)

func TestSpeechGate(t *testing.T) {
	t.Run("no wait when idle", func(t *testing.T) {
		g := NewSpeechGate()
		done := make(chan struct{})
		go func() {
			g.WaitWhileSpeaking(context.Background(), time.Minute)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("idle gate blocked the waiter")
		}
	})

	t.Run("released when speech ends", func(t *testing.T) {
		g := NewSpeechGate()
		g.SetSpeaking(true)
		require.True(t, g.Speaking())

		done := make(chan struct{})
		go func() {
			g.WaitWhileSpeaking(context.Background(), time.Minute)
			close(done)
		}()

		time.Sleep(20 * time.Millisecond)
		select {
		case <-done:
			t.Fatal("waiter released while speech was in progress")
		default:
		}

		g.SetSpeaking(false)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("waiter not released after speech ended")
		}
	})

	t.Run("timeout unblocks", func(t *testing.T) {
		g := NewSpeechGate()
		g.SetSpeaking(true)
		start := time.Now()
		g.WaitWhileSpeaking(context.Background(), 30*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		g.SetSpeaking(false)
	})

	t.Run("context cancel unblocks", func(t *testing.T) {
		g := NewSpeechGate()
		g.SetSpeaking(true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		done := make(chan struct{})
		go func() {
			g.WaitWhileSpeaking(ctx, time.Minute)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("cancelled waiter stayed blocked")
		}
		g.SetSpeaking(false)
	})
}

func TestResponseLatencySpeaks(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()

	speaks := record(f.bus, TopicSpeak)

	t.Run("default language", func(t *testing.T) {
		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicResponseLatency, nil)))
		require.Equal(t, 1, speaks.count())
		msg := speaks.last()
		assert.Equal(t, "This is taking a moment, hang tight.", msg.Data["utterance"])
		assert.Equal(t, "aura.intent", msg.Context["client_name"])
		assert.Equal(t, "audio", msg.Context["source"])
	})

	t.Run("event language", func(t *testing.T) {
		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicResponseLatency,
			map[string]any{"lang": "de-de"})))
		require.Equal(t, 2, speaks.count())
		assert.Equal(t, "Das dauert einen Moment, bitte warten.",
			speaks.last().Data["utterance"])
	})
}

func TestWakewordStopsSpeech(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()

	stops := record(f.bus, TopicSpeechStop)
	require.NoError(t, f.bus.Publish(bus.NewMessage(TopicWakeword, nil)))
	assert.Equal(t, 1, stops.count())
}

func TestAudioOutputEventsDriveGate(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()

	require.NoError(t, f.bus.Publish(bus.NewMessage(TopicAudioOutputStart, nil)))
	assert.True(t, f.svc.speech.Speaking())
	require.NoError(t, f.bus.Publish(bus.NewMessage(TopicAudioOutputEnd, nil)))
	assert.False(t, f.svc.speech.Speaking())
}

func TestUtteranceContext(t *testing.T) {
	t.Run("chat history installed", func(t *testing.T) {
		f := newFixture(nil)
		defer f.svc.Close()

		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicUtteranceContext,
			map[string]any{"utterance_context": []any{
				map[string]any{"role": "user", "content": "what's the tallest mountain"},
				map[string]any{"role": "assistant", "content": "Mount Everest."},
				map[string]any{"role": "user", "content": ""},
				"not a turn",
			}})))

		want := []ChatTurn{
			{Role: "user", Content: "what's the tallest mountain"},
			{Role: "assistant", Content: "Mount Everest."},
		}
		assert.Equal(t, want, f.qa.historySnapshot())
	})

	t.Run("chat switch replaces history", func(t *testing.T) {
		f := newFixture(nil)
		defer f.svc.Close()

		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicUtteranceContext,
			map[string]any{"utterance_context": []any{
				map[string]any{"role": "user", "content": "old chat"},
			}})))
		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicUtteranceContext,
			map[string]any{"utterance_context": []any{}})))
		assert.Empty(t, f.qa.historySnapshot())
	})

	t.Run("no qa engine", func(t *testing.T) {
		b := bus.NewMemoryBus()
		svc, err := New(Params{Bus: b, Adapt: newFakeAdapt()})
		require.NoError(t, err)
		defer svc.Close()

		require.NoError(t, b.Publish(bus.NewMessage(TopicUtteranceContext,
			map[string]any{"utterance_context": []any{
				map[string]any{"role": "user", "content": "anything"},
			}})))
	})
}

func TestGenerate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(nil)
		defer f.svc.Close()
		f.qa.response = "a short poem"

		replies := record(f.bus, TopicGenerateResponse)
		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicGenerate,
			map[string]any{"prompt": "write a short poem"})))
		require.Equal(t, 1, replies.count())
		assert.Equal(t, "a short poem", replies.last().Data["response"])
		assert.NotContains(t, replies.last().Data, "error")
	})

	t.Run("engine error", func(t *testing.T) {
		f := newFixture(nil)
		defer f.svc.Close()
		f.qa.genErr = errors.New("quota exceeded")

		replies := record(f.bus, TopicGenerateResponse)
		require.NoError(t, f.bus.Publish(bus.NewMessage(TopicGenerate,
			map[string]any{"prompt": "anything"})))
		require.Equal(t, 1, replies.count())
		assert.Nil(t, replies.last().Data["response"])
		assert.Equal(t, "quota exceeded", replies.last().Data["error"])
	})

	t.Run("no engine", func(t *testing.T) {
		b := bus.NewMemoryBus()
		svc, err := New(Params{Bus: b, Adapt: newFakeAdapt()})
		require.NoError(t, err)
		defer svc.Close()

		replies := record(b, TopicGenerateResponse)
		require.NoError(t, b.Publish(bus.NewMessage(TopicGenerate,
			map[string]any{"prompt": "anything"})))
		require.Equal(t, 1, replies.count())
		assert.Equal(t, "no qa engine configured", replies.last().Data["error"])
	})
}
