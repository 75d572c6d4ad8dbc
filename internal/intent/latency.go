package intent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/bus"
	"aura/internal/dialog"
)

// maxSpeechWait bounds how long the latency notification waits for ongoing
// audio output before speaking anyway.
const maxSpeechWait = 15 * time.Second

// SpeechGate tracks whether audio output is currently playing, fed by the
// recognizer loop's audio_output_start/end events. It lets the latency
// monitor avoid talking over in-flight speech.
type SpeechGate struct {
	mu       sync.Mutex
	speaking bool
	waiters  []chan struct{}
}

// NewSpeechGate creates a gate with no speech in progress.
func NewSpeechGate() *SpeechGate {
	return &SpeechGate{}
}

// SetSpeaking records a transition of the audio output state. Ending speech
// releases every waiter.
func (g *SpeechGate) SetSpeaking(speaking bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speaking = speaking
	if !speaking {
		for _, ch := range g.waiters {
			close(ch)
		}
		g.waiters = nil
	}
}

// Speaking reports whether audio output is in progress.
func (g *SpeechGate) Speaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speaking
}

// WaitWhileSpeaking blocks until current speech output finishes, the timeout
// elapses, or ctx is done.
func (g *SpeechGate) WaitWhileSpeaking(ctx context.Context, timeout time.Duration) {
	g.mu.Lock()
	if !g.speaking {
		g.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(timeout):
	case <-ctx.Done():
	}
}

// handleResponseLatency reacts to the "taking too long" signal: once current
// speech finishes, speak a localized notification, then wait for it to drain
// so it is not garbled by concurrent audio.
func (s *Service) handleResponseLatency(msg *bus.Message) {
	lang := s.messageLang(msg)
	phrase := dialog.Get(lang, "taking_too_long")
	s.log.Info("resolution is taking too long, notifying", zap.String("lang", lang))

	ctx := context.Background()
	s.speech.WaitWhileSpeaking(ctx, maxSpeechWait)
	speak := bus.NewMessage(TopicSpeak, map[string]any{"utterance": phrase})
	speak.Context["client_name"] = "aura.intent"
	speak.Context["source"] = "audio"
	s.publish(speak)
	s.speech.WaitWhileSpeaking(ctx, maxSpeechWait)
}

// handleWakeword interrupts ongoing speech output so the fresh utterance can
// be handled.
func (s *Service) handleWakeword(_ *bus.Message) {
	s.publish(bus.NewMessage(TopicSpeechStop, nil))
}

// handleUtteranceContext installs the UI's chat history as the question
// answering conversation context. Every chat switch replaces the whole
// history; turns with empty content are dropped.
func (s *Service) handleUtteranceContext(msg *bus.Message) {
	if s.qa == nil {
		return
	}
	raw, _ := msg.Data["utterance_context"].([]any)
	turns := make([]ChatTurn, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, _ := entry["content"].(string)
		if content == "" {
			continue
		}
		role, _ := entry["role"].(string)
		turns = append(turns, ChatTurn{Role: role, Content: content})
	}
	s.qa.SetHistory(turns)
}

// handleGenerate forwards a free-form prompt to the persona engine and
// publishes the generated response.
func (s *Service) handleGenerate(msg *bus.Message) {
	if s.qa == nil {
		s.publish(msg.Reply(TopicGenerateResponse, map[string]any{
			"response": nil, "error": "no qa engine configured",
		}))
		return
	}
	prompt, _ := msg.Data["prompt"].(string)
	response, err := s.qa.Generate(context.Background(), prompt)
	if err != nil {
		s.log.Error("generate failed", zap.Error(err))
		s.publish(msg.Reply(TopicGenerateResponse, map[string]any{
			"response": nil, "error": err.Error(),
		}))
		return
	}
	s.publish(msg.Reply(TopicGenerateResponse, map[string]any{"response": response}))
}
