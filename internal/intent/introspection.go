package intent

import (
	"time"

	"aura/internal/bus"
)

// handleGetIntent probes the reduced matcher chain for an utterance and
// reports the winning intent, or nil. Read-only: no dispatch, no registry
// mutation.
func (s *Service) handleGetIntent(msg *bus.Message) {
	utterance, _ := msg.Data["utterance"].(string)
	lang, _ := msg.Data["lang"].(string)

	match, tier := s.Explain(utterance, lang)
	if match == nil || match.IntentType == "" {
		s.publish(msg.Reply(TopicIntentReply, map[string]any{"intent": nil}))
		return
	}

	data := make(map[string]any, len(match.IntentData)+4)
	for k, v := range match.IntentData {
		data[k] = v
	}
	data["intent_name"] = match.IntentType
	data["intent_service"] = match.Service
	data["skill_id"] = match.SkillID
	data["handler"] = tier
	s.publish(msg.Reply(TopicIntentReply, map[string]any{"intent": data}))
}

// handleGetSkills reports the id-to-display-name directory.
func (s *Service) handleGetSkills(msg *bus.Message) {
	s.namesMu.RLock()
	skills := make(map[string]any, len(s.skillNames))
	for id, name := range s.skillNames {
		skills[id] = name
	}
	s.namesMu.RUnlock()
	s.publish(msg.Reply(TopicSkillsReply, map[string]any{"skills": skills}))
}

// handleGetActiveSkills reports the converse registry without pruning it:
// expiry is enforced on the converse path only.
func (s *Service) handleGetActiveSkills(msg *bus.Message) {
	entries := s.registry.Snapshot()
	skills := make([]any, len(entries))
	for i, e := range entries {
		skills[i] = map[string]any{
			"skill_id":       e.SkillID,
			"last_activated": e.LastActivated.Format(time.RFC3339),
		}
	}
	s.publish(msg.Reply(TopicActiveSkillsReply, map[string]any{"skills": skills}))
}

// handleGetAdapt probes the adapt engine alone.
func (s *Service) handleGetAdapt(msg *bus.Message) {
	utterance, _ := msg.Data["utterance"].(string)
	lang, _ := msg.Data["lang"].(string)
	if lang == "" {
		lang = s.defaultLangCode()
	}

	match, err := s.adapt.MatchIntent(utterance, normalizeLang(lang))
	if err != nil {
		s.qlog.Warn("adapt probe failed: " + err.Error())
	}
	var data map[string]any
	if match != nil {
		data = match.IntentData
	}
	s.publish(msg.Reply(TopicAdaptReply, map[string]any{"intent": data}))
}

func (s *Service) handleAdaptManifest(msg *bus.Message) {
	s.publish(msg.Reply(TopicAdaptManifest, map[string]any{
		"intents": s.adapt.IntentManifest(),
	}))
}

func (s *Service) handleVocabManifest(msg *bus.Message) {
	s.vocabMu.Lock()
	vocab := make([]any, len(s.registeredVocab))
	for i, entry := range s.registeredVocab {
		vocab[i] = entry
	}
	s.vocabMu.Unlock()
	s.publish(msg.Reply(TopicVocabManifest, map[string]any{"vocab": vocab}))
}

// handleGetPadatious probes the padatious engine with the raw utterance, and
// retries with the upstream-normalized form only when one was supplied and
// the raw form failed.
func (s *Service) handleGetPadatious(msg *bus.Message) {
	if s.padatious == nil {
		s.publish(msg.Reply(TopicPadatiousReply, map[string]any{"intent": nil}))
		return
	}
	utterance, _ := msg.Data["utterance"].(string)
	norm, _ := msg.Data["norm_utt"].(string)

	intent, err := s.padatious.CalcIntent(utterance)
	if err != nil {
		s.qlog.Warn("padatious probe failed: " + err.Error())
	}
	if intent == nil && norm != "" && norm != utterance {
		intent, err = s.padatious.CalcIntent(norm)
		if err != nil {
			s.qlog.Warn("padatious norm probe failed: " + err.Error())
		}
	}

	var data map[string]any
	if intent != nil {
		data = map[string]any{
			"name":    intent.Name,
			"conf":    intent.Conf,
			"matches": intent.Matches,
			"sent":    intent.Sent,
		}
	}
	s.publish(msg.Reply(TopicPadatiousReply, map[string]any{"intent": data}))
}

func (s *Service) handlePadatiousManifest(msg *bus.Message) {
	var intents []string
	if s.padatious != nil {
		intents = s.padatious.RegisteredIntents()
	}
	s.publish(msg.Reply(TopicPadManifest, map[string]any{"intents": intents}))
}

func (s *Service) handleEntityManifest(msg *bus.Message) {
	var entities []string
	if s.padatious != nil {
		entities = s.padatious.RegisteredEntities()
	}
	s.publish(msg.Reply(TopicPadEntitiesManifest, map[string]any{"entities": entities}))
}
