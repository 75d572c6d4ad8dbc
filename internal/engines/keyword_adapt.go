// Package engines ships the built-in matcher engines. KeywordAdapt is a
// small slot-grammar engine honoring the adapt contract: registered
// vocabulary keywords and regex entities, intents requiring entity types,
// and a context store that biases matching toward recent conversation
// topics. Deployments with a full external grammar engine plug it in behind
// the same interface instead.
package engines

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"aura/internal/intent"
)

type vocabEntry struct {
	value      string
	entityType string
	aliasOf    string
}

type regexEntry struct {
	pattern *regexp.Regexp
	groups  []string
}

type intentDef struct {
	name       string
	skillID    string
	requires   []string
	optional   []string
	atLeastOne [][]string
	raw        map[string]any
}

// KeywordAdapt implements intent.AdaptEngine in process.
type KeywordAdapt struct {
	mu      sync.RWMutex
	vocab   map[string][]vocabEntry // entity type -> values
	regexes []regexEntry
	intents []intentDef
	context []intent.ContextEntity
}

// NewKeywordAdapt creates an empty engine.
func NewKeywordAdapt() *KeywordAdapt {
	return &KeywordAdapt{vocab: make(map[string][]vocabEntry)}
}

// RegisterVocabulary adds a keyword or regex entity.
func (e *KeywordAdapt) RegisterVocabulary(entityValue, entityType, aliasOf, regex string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if regex != "" {
		pattern, err := regexp.Compile("(?i)" + regex)
		if err != nil {
			return fmt.Errorf("bad regex vocabulary %q: %w", regex, err)
		}
		var groups []string
		for _, g := range pattern.SubexpNames() {
			if g != "" {
				groups = append(groups, g)
			}
		}
		e.regexes = append(e.regexes, regexEntry{pattern: pattern, groups: groups})
		return nil
	}

	if entityValue == "" || entityType == "" {
		return fmt.Errorf("vocabulary requires entity_value and entity_type")
	}
	e.vocab[entityType] = append(e.vocab[entityType], vocabEntry{
		value:      strings.ToLower(entityValue),
		entityType: entityType,
		aliasOf:    aliasOf,
	})
	return nil
}

// RegisterIntent stores a serialized intent definition. Recognized fields:
// name, requires, optional, at_least_one.
func (e *KeywordAdapt) RegisterIntent(def map[string]any) error {
	name, _ := def["name"].(string)
	if name == "" {
		return fmt.Errorf("intent definition has no name")
	}
	parsed := intentDef{
		name:       name,
		skillID:    skillFromIntentName(name),
		requires:   entityList(def["requires"]),
		optional:   entityList(def["optional"]),
		atLeastOne: entityGroups(def["at_least_one"]),
		raw:        def,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Re-registration replaces the previous definition.
	for i, existing := range e.intents {
		if existing.name == name {
			e.intents[i] = parsed
			return nil
		}
	}
	e.intents = append(e.intents, parsed)
	return nil
}

// DetachIntent removes one intent by name.
func (e *KeywordAdapt) DetachIntent(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, def := range e.intents {
		if def.name == name {
			e.intents = append(e.intents[:i], e.intents[i+1:]...)
			return
		}
	}
}

// DetachSkill removes every intent registered by a skill.
func (e *KeywordAdapt) DetachSkill(skillID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.intents[:0]
	for _, def := range e.intents {
		if def.skillID != skillID {
			kept = append(kept, def)
		}
	}
	e.intents = kept
}

// IntentManifest returns the registered definitions as supplied.
func (e *KeywordAdapt) IntentManifest() []map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]map[string]any, len(e.intents))
	for i, def := range e.intents {
		out[i] = def.raw
	}
	return out
}

// InjectContext prepends a semantic tag to the context store.
func (e *KeywordAdapt) InjectContext(entity intent.ContextEntity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.context = append([]intent.ContextEntity{entity}, e.context...)
}

// RemoveContext drops every entry carrying the given context tag.
func (e *KeywordAdapt) RemoveContext(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.context[:0]
	for _, entry := range e.context {
		if !hasTag(entry, tag) {
			kept = append(kept, entry)
		}
	}
	e.context = kept
}

// ClearContext empties the context store.
func (e *KeywordAdapt) ClearContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.context = nil
}

// ContextSnapshot returns the current context entries, newest first.
func (e *KeywordAdapt) ContextSnapshot() []intent.ContextEntity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]intent.ContextEntity, len(e.context))
	copy(out, e.context)
	return out
}

// MatchIntent resolves the first registered intent whose requirements are
// satisfied by the utterance (plus injected context). Registration order is
// the tie-break.
func (e *KeywordAdapt) MatchIntent(utterance, lang string) (*intent.Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	lowered := strings.ToLower(utterance)
	for _, def := range e.intents {
		data, ok := e.satisfies(def, utterance, lowered)
		if !ok {
			continue
		}
		data["intent_type"] = def.name
		return &intent.Match{
			Service:    "Adapt",
			IntentType: def.name,
			IntentData: data,
			SkillID:    def.skillID,
		}, nil
	}
	return nil, nil
}

// satisfies checks one intent definition; holds at least a read lock.
func (e *KeywordAdapt) satisfies(def intentDef, utterance, lowered string) (map[string]any, bool) {
	data := map[string]any{}
	confidence := 1.0

	for _, entityType := range def.requires {
		value, fromContext := e.findEntity(entityType, utterance, lowered)
		if value == "" {
			return nil, false
		}
		if fromContext {
			confidence *= 0.9
		}
		data[entityType] = value
	}

	for _, group := range def.atLeastOne {
		found := false
		for _, entityType := range group {
			if value, _ := e.findEntity(entityType, utterance, lowered); value != "" {
				data[entityType] = value
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	for _, entityType := range def.optional {
		if value, _ := e.findEntity(entityType, utterance, lowered); value != "" {
			data[entityType] = value
		}
	}

	data["confidence"] = confidence
	return data, true
}

// findEntity locates a value for entityType in the utterance: keyword vocab
// first, then regex groups, then the context store. The second return
// reports a context-sourced value.
func (e *KeywordAdapt) findEntity(entityType, utterance, lowered string) (string, bool) {
	for _, entry := range e.vocab[entityType] {
		if containsWord(lowered, entry.value) {
			if entry.aliasOf != "" {
				return entry.aliasOf, false
			}
			return entry.value, false
		}
	}

	for _, re := range e.regexes {
		match := re.pattern.FindStringSubmatch(utterance)
		if match == nil {
			continue
		}
		for i, g := range re.pattern.SubexpNames() {
			if g == entityType && i < len(match) && match[i] != "" {
				return match[i], false
			}
		}
	}

	for _, entry := range e.context {
		for _, pair := range entry.Data {
			if pair[1] == entityType && pair[0] != "" {
				return pair[0], true
			}
		}
	}
	return "", false
}

// containsWord reports whether needle occurs in haystack on word boundaries.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}

func hasTag(entry intent.ContextEntity, tag string) bool {
	for _, pair := range entry.Data {
		if pair[1] == tag {
			return true
		}
	}
	return false
}

func skillFromIntentName(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return ""
}

// entityList accepts either plain strings or [entity, alias] pairs, which is
// how skill frameworks serialize requirements.
func entityList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func entityGroups(raw any) [][]string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out [][]string
	for _, item := range items {
		group := entityList(item)
		if len(group) == 0 {
			if s, ok := item.(string); ok {
				group = []string{s}
			}
		}
		if len(group) > 0 {
			out = append(out, group)
		}
	}
	return out
}
