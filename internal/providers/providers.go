// Package providers adapts the API clients under pkg/ to the dispatcher's
// Provider interface. Each adapter owns its prompt shape; the shared answer
// prompt keeps responses comparable across engines.
package providers

import (
	"context"
	"fmt"

	"github.com/sells-group/visibility-cli/pkg/claude"
	"github.com/sells-group/visibility-cli/pkg/gemini"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// AnswerSystem is the system prompt shared by every answer provider. It asks
// for a natural answer grounded in the supplied context, without steering
// the model toward or away from naming any brand.
const AnswerSystem = "You are a knowledgeable assistant answering a user's question. " +
	"Use the provided context when it is relevant, and your general knowledge otherwise. " +
	"Answer naturally and concretely. Mention specific companies, products, or brands " +
	"only where they genuinely answer the question."

// AnswerPrompt renders the user prompt for one query and its context.
func AnswerPrompt(query, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf("Question: %s", query)
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
}

// OpenAI answers queries through the OpenAI chat API.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (p *OpenAI) ID() string { return "openai" }

func (p *OpenAI) Generate(ctx context.Context, query, contextText string) (string, error) {
	return p.client.ChatCompletion(ctx, AnswerSystem, AnswerPrompt(query, contextText))
}

// Gemini answers queries through the Google GenAI API.
type Gemini struct {
	client gemini.Client
}

func NewGemini(client gemini.Client) *Gemini {
	return &Gemini{client: client}
}

func (p *Gemini) ID() string { return "gemini" }

func (p *Gemini) Generate(ctx context.Context, query, contextText string) (string, error) {
	return p.client.GenerateContent(ctx, AnswerSystem, AnswerPrompt(query, contextText))
}

// Claude answers queries through the Anthropic API.
type Claude struct {
	client    claude.Client
	maxTokens int64
}

func NewClaude(client claude.Client) *Claude {
	return &Claude{client: client, maxTokens: 1024}
}

func (p *Claude) ID() string { return "claude" }

func (p *Claude) Generate(ctx context.Context, query, contextText string) (string, error) {
	resp, err := p.client.CreateMessage(ctx, claude.MessageRequest{
		MaxTokens: p.maxTokens,
		System:    AnswerSystem,
		Messages: []claude.Message{
			{Role: "user", Content: AnswerPrompt(query, contextText)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Perplexity answers queries through the Perplexity chat API.
type Perplexity struct {
	client perplexity.Client
}

func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

func (p *Perplexity) ID() string { return "perplexity" }

func (p *Perplexity) Generate(ctx context.Context, query, contextText string) (string, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: AnswerSystem},
			{Role: "user", Content: AnswerPrompt(query, contextText)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("perplexity: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
