package answer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/retriever"
)

// fakeChat returns a scripted completion and counts calls.
type fakeChat struct {
	text  string
	err   error
	calls int
	last  provider.ChatRequest
}

func (f *fakeChat) Complete(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{
		Text:  f.text,
		Usage: provider.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil
}

func somePassages(n int) []retriever.Passage {
	out := make([]retriever.Passage, n)
	for i := range out {
		out[i] = retriever.Passage{
			DocID:      "doc",
			Title:      "Title",
			Text:       "passage text",
			ChunkIndex: i,
		}
	}
	return out
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		passageCount int
		want         []int
	}{
		{"no markers", "plain answer", 5, []int{}},
		{"single", "claim [p0].", 5, []int{0}},
		{"dedup and sort", "see [p3] and [p0], also [p3]", 5, []int{0, 3}},
		{"duplicate markers", "[p0][p0][p1]", 3, []int{0, 1}},
		{"out of range discarded", "see [p1] and [p5]", 3, []int{1}},
		{"multi digit", "see [p12]", 15, []int{12}},
		{"not a marker", "array[1] and [q2]", 5, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.text, tt.passageCount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCitations(%q, %d) = %v, want %v",
					tt.text, tt.passageCount, got, tt.want)
			}
		})
	}
}

func TestSynthesizeEmptyPassagesSkipsModel(t *testing.T) {
	chat := &fakeChat{text: "should never be called"}
	s := NewSynthesizer(chat, logger.NewNop())

	ans, err := s.Synthesize(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if ans.Text != NoInformationAnswer {
		t.Errorf("Text = %q, want fixed no-information answer", ans.Text)
	}
	if len(ans.Citations) != 0 {
		t.Errorf("Citations = %v, want empty", ans.Citations)
	}
	if chat.calls != 0 {
		t.Errorf("model calls = %d, want 0", chat.calls)
	}
	if ans.Usage.TotalTokens != 0 {
		t.Errorf("Usage = %+v, want zero", ans.Usage)
	}
}

func TestSynthesizeWithPassages(t *testing.T) {
	chat := &fakeChat{text: "Refunds take 14 days [p2] per policy [p0]."}
	s := NewSynthesizer(chat, logger.NewNop())

	ans, err := s.Synthesize(context.Background(), "refund timeline", somePassages(3))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if chat.calls != 1 {
		t.Errorf("model calls = %d, want 1", chat.calls)
	}
	if !reflect.DeepEqual(ans.Citations, []int{0, 2}) {
		t.Errorf("Citations = %v, want [0 2]", ans.Citations)
	}
	if ans.Usage.TotalTokens != 120 {
		t.Errorf("TotalTokens = %d, want 120", ans.Usage.TotalTokens)
	}

	// Every passage must be numbered in the prompt
	for _, marker := range []string{"[p0]", "[p1]", "[p2]"} {
		if !strings.Contains(chat.last.User, marker) {
			t.Errorf("prompt missing %s", marker)
		}
	}
	if !strings.Contains(chat.last.User, "Question: refund timeline") {
		t.Error("prompt missing question")
	}
}

func TestSynthesizeModelFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("provider down")}
	s := NewSynthesizer(chat, logger.NewNop())

	_, err := s.Synthesize(context.Background(), "q", somePassages(1))
	appErr := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.CodeAnswerFailed {
		t.Errorf("error = %v, want %s", err, apperrors.CodeAnswerFailed)
	}
}

func TestSynthesizeEmptyCompletion(t *testing.T) {
	chat := &fakeChat{text: "   "}
	s := NewSynthesizer(chat, logger.NewNop())

	if _, err := s.Synthesize(context.Background(), "q", somePassages(1)); err == nil {
		t.Error("empty completion should be an error")
	}
}
