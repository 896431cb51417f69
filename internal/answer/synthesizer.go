// Package answer generates grounded answers from retrieved passages,
// with inline citations back to the passages used.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/retriever"
)

// NoInformationAnswer is returned verbatim when retrieval produced no
// passages. No model call is made in that case.
const NoInformationAnswer = "I don't have enough information in the knowledge base to answer that question."

const systemPrompt = `You are a precise assistant that answers questions using only the provided passages.
Cite every claim with the passage marker in square brackets, for example [p0] or [p2].
If the passages do not contain the answer, say so instead of guessing.`

// Answer is a synthesized response.
type Answer struct {
	// Text is the generated answer.
	Text string `json:"text"`

	// Citations are the 0-based passage indices cited in Text.
	Citations []int `json:"citations"`

	// Usage is the provider-reported token usage. Zero when no model
	// call was made.
	Usage provider.TokenUsage `json:"-"`
}

// Synthesizer builds prompts and calls the chat model.
type Synthesizer struct {
	chat provider.ChatModel
	log  *logger.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(chat provider.ChatModel, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		chat: chat,
		log:  log,
	}
}

// Synthesize generates an answer for the query from the passages. With
// no passages it returns the fixed no-information answer without
// touching the model, an empty context can only produce hallucinations.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, passages []retriever.Passage) (*Answer, error) {
	if len(passages) == 0 {
		return &Answer{
			Text:      NoInformationAnswer,
			Citations: []int{},
		}, nil
	}

	resp, err := s.chat.Complete(ctx, provider.ChatRequest{
		System: systemPrompt,
		User:   buildPrompt(query, passages),
	})
	if err != nil {
		return nil, errors.AnswerError("chat completion failed", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, errors.AnswerError("model returned an empty answer", nil)
	}

	return &Answer{
		Text:      text,
		Citations: ExtractCitations(text, len(passages)),
		Usage:     resp.Usage,
	}, nil
}

// buildPrompt numbers each passage so the model can cite it by marker.
func buildPrompt(query string, passages []retriever.Passage) string {
	var sb strings.Builder

	sb.WriteString("Passages:\n\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[p%d]", i)
		if p.Title != "" {
			fmt.Fprintf(&sb, " (%s)", p.Title)
		}
		sb.WriteString("\n")
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)

	return sb.String()
}
