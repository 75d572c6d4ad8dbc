package intent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aura/internal/bus"
	"aura/internal/metrics"
)

// matchers builds the full priority chain for one utterance event. The order
// is fixed and total: an earlier matcher committing a result means no later
// matcher runs.
func (s *Service) matchers() []Matcher {
	th := s.thresholds()
	return []Matcher{
		&converseMatcher{svc: s},
		&padatiousMatcher{engine: s.padatious, threshold: th.HighConfidence, name: "PadatiousHigh"},
		&adaptMatcher{engine: s.adapt},
		&qaMatcher{engine: s.qa},
		&fallbackMatcher{svc: s, name: "FallbackHigh", lo: 0, hi: 5},
		&padatiousMatcher{engine: s.padatious, threshold: th.MediumConfidence, name: "PadatiousMedium"},
		&fallbackMatcher{svc: s, name: "FallbackMedium", lo: 5, hi: 90},
		&padatiousMatcher{engine: s.padatious, threshold: th.LowConfidence, name: "PadatiousLow"},
		&fallbackMatcher{svc: s, name: "FallbackLow", lo: 90, hi: 101},
	}
}

// probeMatchers is the reduced, side-effect-free subset used by the intent
// introspection query: converse and fallback are excluded because both would
// commit real work in other services.
func (s *Service) probeMatchers() []Matcher {
	th := s.thresholds()
	return []Matcher{
		&padatiousMatcher{engine: s.padatious, threshold: th.HighConfidence, name: "PadatiousHigh"},
		&adaptMatcher{engine: s.adapt},
		&padatiousMatcher{engine: s.padatious, threshold: th.MediumConfidence, name: "PadatiousMedium"},
		&padatiousMatcher{engine: s.padatious, threshold: th.LowConfidence, name: "PadatiousLow"},
	}
}

// handleUtterance resolves one utterance event to at most one handler.
//
// The chain, in priority order:
//  1. Active skills attempt to handle via converse
//  2. Padatious high-confidence intents
//  3. Adapt slot-grammar intents
//  4. Question answering
//  5. High-priority fallbacks
//  6. Padatious medium intents
//  7. General fallbacks
//  8. Padatious loose intents
//  9. Catch-all fallbacks
//
// The first non-empty result wins; if none, complete_intent_failure is
// published exactly once.
func (s *Service) handleUtterance(msg *bus.Message) {
	utterance, err := firstUtterance(msg)
	if err != nil {
		// Pipeline bookkeeping failure: drop the event with an error log,
		// without fabricating a failure event.
		s.plog.Error("dropping malformed utterance event", zap.Error(err))
		return
	}
	lang := s.messageLang(msg)

	sw := metrics.NewStopwatch()
	var match *Match
	var matchedBy string
	for _, m := range s.matchers() {
		res, err := m.Match(utterance, lang, msg)
		if err != nil {
			// Local matcher failure: treated as no-match, chain proceeds.
			s.plog.Warn("matcher failed",
				zap.String("matcher", m.Name()), zap.Error(err))
			continue
		}
		if res != nil {
			match, matchedBy = res, m.Name()
			break
		}
	}

	if match == nil {
		s.plog.Info("no intent matched",
			zap.String("utterance", utterance), zap.String("lang", lang))
		metrics.IntentFailures.Inc()
		s.publish(msg.Forward(TopicIntentFailure))
		sw.ObserveResolution()
		return
	}

	if match.SkillID != "" {
		// Any matcher's skill becomes conversationally eligible, not only
		// converse itself.
		s.registry.Activate(match.SkillID)
	}
	if match.IntentType != "" {
		data := make(map[string]any, len(match.IntentData)+1)
		for k, v := range match.IntentData {
			data[k] = v
		}
		data["utterances"] = utterance
		s.publish(msg.Reply(match.IntentType, data))
	}

	metrics.UtterancesMatched.WithLabelValues(match.Service).Inc()
	s.plog.Debug("utterance resolved",
		zap.String("matcher", matchedBy),
		zap.String("intent", match.IntentType),
		zap.String("skill_id", match.SkillID),
		zap.Duration("took", sw.ObserveResolution()))
}

// Explain runs the reduced probe chain without side effects and returns the
// best match plus the tier that produced it, or (nil, "") when nothing
// matches.
func (s *Service) Explain(utterance, lang string) (*Match, string) {
	if lang == "" {
		lang = s.defaultLangCode()
	} else {
		lang = normalizeLang(lang)
	}
	probe := bus.NewMessage(TopicGetIntent, map[string]any{"utterance": utterance, "lang": lang})
	for _, m := range s.probeMatchers() {
		res, err := m.Match(utterance, lang, probe)
		if err != nil {
			s.qlog.Warn("probe matcher failed",
				zap.String("matcher", m.Name()), zap.Error(err))
			continue
		}
		if res != nil {
			return res, m.Name()
		}
	}
	return nil, ""
}

// firstUtterance extracts the canonical ASR alternative from the event.
func firstUtterance(msg *bus.Message) (string, error) {
	raw, ok := msg.Data["utterances"]
	if !ok {
		return "", fmt.Errorf("event %q carries no utterances", msg.Type)
	}
	switch v := raw.(type) {
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0], nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("event %q has an empty utterance list", msg.Type)
}

func normalizeLang(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
