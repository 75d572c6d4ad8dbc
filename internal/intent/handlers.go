package intent

import (
	"fmt"

	"go.uber.org/zap"

	"aura/internal/bus"
)

// handleRegisterVocab forwards an adapt vocabulary registration and appends
// the raw payload to the audit log. The log is an append-only trail, not a
// set: duplicate registrations are kept.
func (s *Service) handleRegisterVocab(msg *bus.Message) {
	entityValue, _ := msg.Data["entity_value"].(string)
	entityType, _ := msg.Data["entity_type"].(string)
	aliasOf, _ := msg.Data["alias_of"].(string)
	regex, _ := msg.Data["regex"].(string)

	if err := s.adapt.RegisterVocabulary(entityValue, entityType, aliasOf, regex); err != nil {
		s.log.Error("vocabulary registration failed",
			zap.String("entity_type", entityType), zap.Error(err))
		return
	}

	payload := make(map[string]any, len(msg.Data))
	for k, v := range msg.Data {
		payload[k] = v
	}
	s.vocabMu.Lock()
	s.registeredVocab = append(s.registeredVocab, payload)
	s.vocabMu.Unlock()
}

// handleRegisterIntent opens the intent envelope and forwards the definition
// to adapt.
func (s *Service) handleRegisterIntent(msg *bus.Message) {
	def, err := openIntentEnvelope(msg)
	if err != nil {
		s.log.Error("intent registration failed", zap.Error(err))
		return
	}
	if err := s.adapt.RegisterIntent(def); err != nil {
		s.log.Error("intent registration failed",
			zap.Any("name", def["name"]), zap.Error(err))
	}
}

// openIntentEnvelope performs the one-step deserialization of a registered
// intent: the message data is the serialized definition and must at least
// carry a name.
func openIntentEnvelope(msg *bus.Message) (map[string]any, error) {
	def := make(map[string]any, len(msg.Data))
	for k, v := range msg.Data {
		def[k] = v
	}
	if name, _ := def["name"].(string); name == "" {
		return nil, fmt.Errorf("intent envelope has no name")
	}
	return def, nil
}

func (s *Service) handleDetachIntent(msg *bus.Message) {
	name, _ := msg.Data["intent_name"].(string)
	s.adapt.DetachIntent(name)
}

func (s *Service) handleDetachSkill(msg *bus.Message) {
	skillID, _ := msg.Data["skill_id"].(string)
	s.adapt.DetachSkill(skillID)
}

// handleAddContext injects a semantic tag into the adapt context store. A
// non-string word is coerced to its textual form; a missing word becomes the
// empty-string token.
func (s *Service) handleAddContext(msg *bus.Message) {
	context, _ := msg.Data["context"].(string)
	if context == "" {
		return
	}
	word := ""
	if raw, ok := msg.Data["word"]; ok && raw != nil {
		if str, ok := raw.(string); ok {
			word = str
		} else {
			word = fmt.Sprintf("%v", raw)
		}
	}
	origin, _ := msg.Data["origin"].(string)

	s.adapt.InjectContext(ContextEntity{
		Key:        word,
		Match:      word,
		Origin:     origin,
		Confidence: 1.0,
		Data:       [][2]string{{word, context}},
	})
}

func (s *Service) handleRemoveContext(msg *bus.Message) {
	context, _ := msg.Data["context"].(string)
	if context == "" {
		return
	}
	s.adapt.RemoveContext(context)
}

func (s *Service) handleClearContext(_ *bus.Message) {
	s.adapt.ClearContext()
}

// handleSkillsLoaded refreshes the id-to-name directory from the skill
// manager's notification.
func (s *Service) handleSkillsLoaded(msg *bus.Message) {
	id, _ := msg.Data["id"].(string)
	name, _ := msg.Data["name"].(string)
	if id == "" {
		return
	}
	s.namesMu.Lock()
	s.skillNames[id] = name
	s.namesMu.Unlock()
}

// SkillName resolves a skill id to its display name, falling back to the id.
func (s *Service) SkillName(skillID string) string {
	s.namesMu.RLock()
	defer s.namesMu.RUnlock()
	if name, ok := s.skillNames[skillID]; ok && name != "" {
		return name
	}
	return skillID
}

// handleRecognitionFailed lets active skills know speech recognition failed,
// by re-running converse for each with no utterances.
func (s *Service) handleRecognitionFailed(msg *bus.Message) {
	lang := s.messageLang(msg)
	for _, entry := range s.registry.Snapshot() {
		s.doConverse(nil, entry.SkillID, lang, msg)
	}
}

// handleDeactivateSkill removes one skill from converse eligibility and
// forwards the instruction to the skill lifecycle service, which owns the
// actual active flag.
func (s *Service) handleDeactivateSkill(msg *bus.Message) {
	skillID, _ := msg.Data["skill_id"].(string)
	if skillID == "" {
		return
	}
	s.registry.Deactivate(skillID)
	s.publish(msg.Reply(TopicSetSkillActive, map[string]any{
		"skill_id": skillID, "active": false,
	}))
}

// handleDeactivateOthers deactivates every active skill except the named one.
func (s *Service) handleDeactivateOthers(msg *bus.Message) {
	keep, _ := msg.Data["skill_id"].(string)
	for _, entry := range s.registry.Snapshot() {
		if entry.SkillID == keep {
			continue
		}
		s.registry.Deactivate(entry.SkillID)
		s.publish(msg.Reply(TopicSetSkillActive, map[string]any{
			"skill_id": entry.SkillID, "active": false,
		}))
	}
}

// handleActivateSkill forwards an activation instruction for one skill, or
// for all when skill_id is "all". Converse eligibility is earned by matching,
// so the registry is not touched here.
func (s *Service) handleActivateSkill(msg *bus.Message) {
	skillID, _ := msg.Data["skill_id"].(string)
	if skillID == "" {
		return
	}
	s.publish(msg.Reply(TopicSetSkillActive, map[string]any{
		"skill_id": skillID, "active": true,
	}))
}
