package intent

import (
	"fmt"

	"go.uber.org/zap"

	"aura/internal/bus"
	"aura/internal/metrics"
)

// converseMatcher gives recently active skills first refusal on a new
// utterance, via the converse round trip.
type converseMatcher struct {
	svc *Service
}

func (m *converseMatcher) Name() string { return "Converse" }

func (m *converseMatcher) Match(utterance, lang string, msg *bus.Message) (*Match, error) {
	m.svc.registry.PruneExpired(m.svc.converseTimeout())

	for _, entry := range m.svc.registry.Snapshot() {
		if m.svc.doConverse([]string{utterance}, entry.SkillID, lang, msg) {
			return &Match{Service: "Converse", SkillID: entry.SkillID}, nil
		}
	}
	return nil, nil
}

// doConverse asks one skill whether it will handle the utterances. nil
// utterances signal a recognition failure the skill may react to.
func (s *Service) doConverse(utterances []string, skillID, lang string, msg *bus.Message) bool {
	data := map[string]any{
		"skill_id":   skillID,
		"utterances": utterances,
		"lang":       lang,
	}
	req := msg.Reply(TopicConverseRequest, data)
	reply, err := s.bus.Request(req, TopicConverseResponse, s.requestTimeout())
	if err != nil {
		s.clog.Debug("converse request failed",
			zap.String("skill_id", skillID), zap.Error(err))
		metrics.ConverseErrors.WithLabelValues("timeout").Inc()
		return false
	}
	if errMsg, ok := reply.Data["error"].(string); ok && errMsg != "" {
		s.handleConverseError(skillID, errMsg)
		return false
	}
	handled, _ := reply.Data["result"].(bool)
	return handled
}

// handleConverseError logs a skill-reported converse error and evicts skills
// that no longer exist.
func (s *Service) handleConverseError(skillID, errMsg string) {
	s.clog.Error("converse error",
		zap.String("skill_id", skillID), zap.String("error", errMsg))
	metrics.ConverseErrors.WithLabelValues("skill").Inc()
	if errMsg == "skill id does not exist" {
		s.registry.Deactivate(skillID)
	}
}

// padatiousMatcher applies one confidence tier on top of the pattern-trained
// engine.
type padatiousMatcher struct {
	engine    PadatiousEngine
	threshold float64
	name      string
}

func (m *padatiousMatcher) Name() string { return m.name }

func (m *padatiousMatcher) Match(utterance, lang string, _ *bus.Message) (*Match, error) {
	if m.engine == nil {
		return nil, nil
	}
	intent, err := m.engine.CalcIntent(utterance)
	if err != nil {
		return nil, fmt.Errorf("padatious calc: %w", err)
	}
	if intent == nil || intent.Conf < m.threshold {
		return nil, nil
	}

	data := make(map[string]any, len(intent.Matches)+1)
	for k, v := range intent.Matches {
		data[k] = v
	}
	data["confidence"] = intent.Conf
	return &Match{
		Service:    "Padatious",
		IntentType: intent.Name,
		IntentData: data,
		SkillID:    intent.SkillID(),
	}, nil
}

// adaptMatcher delegates to the slot-grammar engine.
type adaptMatcher struct {
	engine AdaptEngine
}

func (m *adaptMatcher) Name() string { return "Adapt" }

func (m *adaptMatcher) Match(utterance, lang string, _ *bus.Message) (*Match, error) {
	if m.engine == nil {
		return nil, nil
	}
	return m.engine.MatchIntent(utterance, lang)
}

// qaMatcher delegates to the persona question-answering engine.
type qaMatcher struct {
	engine QAEngine
}

func (m *qaMatcher) Name() string { return "QA" }

func (m *qaMatcher) Match(utterance, lang string, _ *bus.Message) (*Match, error) {
	if m.engine == nil {
		return nil, nil
	}
	return m.engine.Match(utterance, lang)
}

// fallbackMatcher offers the utterance to the fallback handlers registered in
// one priority range, via a bus round trip. A handling fallback has already
// executed by the time it replies, so no intent topic is dispatched.
type fallbackMatcher struct {
	svc  *Service
	name string
	lo   int
	hi   int
}

func (m *fallbackMatcher) Name() string { return m.name }

func (m *fallbackMatcher) Match(utterance, lang string, msg *bus.Message) (*Match, error) {
	req := msg.Reply(TopicFallbackRequest, map[string]any{
		"fallback_range": []any{m.lo, m.hi},
		"utterances":     []any{utterance},
		"lang":           lang,
	})
	reply, err := m.svc.bus.Request(req, TopicFallbackResponse, m.svc.requestTimeout())
	if err != nil {
		// No fallback skill answered for this range inside the window.
		return nil, nil
	}
	handled, _ := reply.Data["handled"].(bool)
	if !handled {
		return nil, nil
	}
	skillID, _ := reply.Data["skill_id"].(string)
	return &Match{Service: "Fallback", SkillID: skillID}, nil
}
