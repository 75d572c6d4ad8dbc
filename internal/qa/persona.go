// Package qa implements the question-answering engine backing the QA tier of
// the dispatch pipeline, using Google's Gemini API as the persona model.
package qa

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"aura/internal/intent"
)

const (
	defaultModel   = "gemini-2.0-flash"
	requestTimeout = 8 * time.Second

	// refusalToken is what the persona prompt instructs the model to emit
	// when the utterance is a device command rather than a question, so the
	// pipeline can fall through to the fallback tiers.
	refusalToken = "PASS"
)

var personaPrompt = strings.TrimSpace(`
You are the question-answering persona of a voice assistant.
Answer the user's question briefly, in one or two spoken sentences, in the
language of the question.
If the input is not a question you can answer (a device command, smalltalk
handled elsewhere, or gibberish), reply with exactly PASS.
`)

// Persona answers general questions through the Gemini API.
type Persona struct {
	client *genai.Client
	model  string
	log    *zap.Logger

	historyMu sync.Mutex
	history   []intent.ChatTurn
}

// NewPersona creates the engine. The API key is required; model falls back
// to a sensible default.
func NewPersona(ctx context.Context, apiKey, model string, log *zap.Logger) (*Persona, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("persona requires an API key")
	}
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Persona{client: client, model: model, log: log}, nil
}

// Match implements intent.QAEngine: a non-PASS answer becomes a match whose
// handler topic speaks the answer.
func (p *Persona) Match(utterance, lang string) (*intent.Match, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	p.historyMu.Lock()
	history := renderHistory(p.history)
	p.historyMu.Unlock()

	prompt := fmt.Sprintf("%s\n%s\nLanguage: %s\nQuestion: %s",
		personaPrompt, history, lang, utterance)
	answer, err := p.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return interpretAnswer(answer, lang), nil
}

// SetHistory implements intent.QAEngine: the UI's chat history replaces the
// conversation context grounding subsequent answers.
func (p *Persona) SetHistory(turns []intent.ChatTurn) {
	p.historyMu.Lock()
	p.history = append([]intent.ChatTurn(nil), turns...)
	p.historyMu.Unlock()
}

// renderHistory flattens the chat history into a prompt section. Empty
// history renders to nothing so the prompt stays unchanged for fresh chats.
func renderHistory(turns []intent.ChatTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nConversation so far:\n")
	for _, turn := range turns {
		speaker := "Assistant"
		if turn.Role == "user" {
			speaker = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Content)
	}
	return b.String()
}

// interpretAnswer turns the raw model output into a match, or nil when the
// persona declined the utterance.
func interpretAnswer(answer, lang string) *intent.Match {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, refusalToken) {
		return nil
	}
	return &intent.Match{
		Service:    "QA",
		IntentType: "qa.response",
		IntentData: map[string]any{"answer": answer, "lang": lang},
	}
}

// Generate runs one free-form completion against the persona model.
func (p *Persona) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("persona generate: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("persona returned no text")
	}
	return text, nil
}
