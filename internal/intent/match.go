// Package intent is the utterance-resolution core: it routes each recognized
// utterance through a fixed priority chain of matchers (converse, padatious
// tiers, adapt, question answering, fallback tiers) and dispatches the single
// winning handler over the messagebus, or declares intent failure.
package intent

import (
	"context"
	"fmt"
	"strings"

	"aura/internal/bus"
)

// Match is the outcome one matcher produced for an utterance.
type Match struct {
	// Service names the matcher that produced the match (Converse,
	// Padatious, Adapt, QA, Fallback).
	Service string

	// IntentType is the bus topic to dispatch the handler on. Empty means
	// the matcher already fully handled the utterance (converse, fallback).
	IntentType string

	// IntentData carries the slot/entity payload for the handler.
	IntentData map[string]any

	// SkillID identifies the owning skill, when known. Any matched skill
	// becomes converse-eligible for subsequent utterances.
	SkillID string
}

// Matcher is one strategy in the priority chain. A nil Match with nil error
// means "did not handle"; an error is logged and treated the same without
// stopping the chain.
type Matcher interface {
	Name() string
	Match(utterance, lang string, msg *bus.Message) (*Match, error)
}

// ContextEntity is one semantic tag forwarded to the Adapt engine's context
// store.
type ContextEntity struct {
	Key        string
	Match      string
	Origin     string
	Confidence float64
	// Data pairs the injected word with the context tag.
	Data [][2]string
}

// PadatiousIntent is the raw result of a padatious engine calculation, before
// tier thresholds are applied.
type PadatiousIntent struct {
	// Name is the trained intent identifier, "<skill_id>:<intent>".
	Name string
	// Conf is the match confidence in [0, 1].
	Conf float64
	// Matches holds extracted entity values.
	Matches map[string]any
	// Sent is the sentence the match was computed against.
	Sent string
}

// SkillID extracts the owning skill from the trained intent name.
func (p *PadatiousIntent) SkillID() string {
	if i := strings.IndexByte(p.Name, ':'); i > 0 {
		return p.Name[:i]
	}
	return ""
}

// AdaptEngine is the slot-grammar matcher contract. Implementations own the
// vocabulary, intent and context stores and must be safe for concurrent use.
type AdaptEngine interface {
	MatchIntent(utterance, lang string) (*Match, error)
	RegisterVocabulary(entityValue, entityType, aliasOf, regex string) error
	RegisterIntent(def map[string]any) error
	DetachIntent(name string)
	DetachSkill(skillID string)
	IntentManifest() []map[string]any
	InjectContext(entity ContextEntity)
	RemoveContext(key string)
	ClearContext()
}

// PadatiousEngine is the pattern-trained matcher contract.
type PadatiousEngine interface {
	CalcIntent(utterance string) (*PadatiousIntent, error)
	RegisteredIntents() []string
	RegisteredEntities() []string
}

// ChatTurn is one prior exchange in the conversation the question-answering
// engine should answer within.
type ChatTurn struct {
	// Role is "user" for the speaker, anything else for the assistant.
	Role    string
	Content string
}

// QAEngine answers general questions that no structured intent covers.
type QAEngine interface {
	Match(utterance, lang string) (*Match, error)
	Generate(ctx context.Context, prompt string) (string, error)

	// SetHistory replaces the conversation history used to ground answers.
	// Called when the UI switches chats.
	SetHistory(turns []ChatTurn)
}

func (m *Match) String() string {
	if m == nil {
		return "<no match>"
	}
	return fmt.Sprintf("%s(intent=%q skill=%q)", m.Service, m.IntentType, m.SkillID)
}
