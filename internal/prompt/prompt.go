// Package prompt assembles the chat-completion payload for a recipe request.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultModel is the upstream model used when no override is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message follows the OpenAI role/content schema.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Payload is the request body sent to the chat-completions endpoint.
type Payload struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

// Builder produces payloads for a fixed model.
type Builder struct {
	Model string
}

// Build returns the four-message payload. A one-shot user/assistant pair sits
// between the system instruction and the request listing the ingredients.
func (b Builder) Build(ingredients []string, lang Language) Payload {
	model := b.Model
	if model == "" {
		model = DefaultModel
	}
	t := templateFor(lang)
	return Payload{
		Model:  model,
		Stream: true,
		Messages: []Message{
			{Role: RoleSystem, Content: t.system},
			{Role: RoleUser, Content: t.request(t.exampleIngredients)},
			{Role: RoleAssistant, Content: t.exampleAnswer},
			{Role: RoleUser, Content: t.request(strings.Join(ingredients, ", "))},
		},
	}
}

// Build is Builder.Build with the default model and a raw language code.
func Build(ingredients []string, language string) Payload {
	return Builder{}.Build(ingredients, ParseLanguage(language))
}

type template struct {
	system             string
	requestFormat      string
	exampleIngredients string
	exampleAnswer      string
}

func (t template) request(joined string) string {
	return fmt.Sprintf(t.requestFormat, joined)
}

func templateFor(lang Language) template {
	if lang == English {
		return englishTemplate
	}
	return germanTemplate
}
