package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type mockConverseAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (m *mockConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
	}
}

func TestBedrockResponderAnswer(t *testing.T) {
	api := &mockConverseAPI{output: textOutput("  We integrate with Slack and Teams. ")}
	r := NewBedrockResponder(api, "anthropic.claude-3-haiku")

	got, err := r.Answer(context.Background(), "org-1", "/integrations", "Do you integrate with Slack?")
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if got != "We integrate with Slack and Teams." {
		t.Fatalf("unexpected answer: %q", got)
	}

	if api.lastInput == nil || *api.lastInput.ModelId != "anthropic.claude-3-haiku" {
		t.Fatal("model id not forwarded")
	}
	if len(api.lastInput.System) != 2 {
		t.Fatalf("expected system prompt plus page context, got %d blocks", len(api.lastInput.System))
	}
	page, ok := api.lastInput.System[1].(*brtypes.SystemContentBlockMemberText)
	if !ok || !strings.Contains(page.Value, "/integrations") {
		t.Fatal("page URL should be included in the system context")
	}
}

func TestBedrockResponderErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		api := &mockConverseAPI{err: errors.New("throttled")}
		r := NewBedrockResponder(api, "model-id")
		if _, err := r.Answer(context.Background(), "org-1", "/", "hi there"); err == nil {
			t.Fatal("expected error from failing API")
		}
	})

	t.Run("empty message", func(t *testing.T) {
		r := NewBedrockResponder(&mockConverseAPI{}, "model-id")
		if _, err := r.Answer(context.Background(), "org-1", "/", "   "); err == nil {
			t.Fatal("expected error for empty message")
		}
	})

	t.Run("missing model id", func(t *testing.T) {
		r := NewBedrockResponder(&mockConverseAPI{}, "")
		if _, err := r.Answer(context.Background(), "org-1", "/", "hi"); err == nil {
			t.Fatal("expected error for missing model id")
		}
	})

	t.Run("no text blocks", func(t *testing.T) {
		api := &mockConverseAPI{output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
		}}
		r := NewBedrockResponder(api, "model-id")
		if _, err := r.Answer(context.Background(), "org-1", "/", "hi"); err == nil {
			t.Fatal("expected error for empty model output")
		}
	})
}

func TestStaticResponder(t *testing.T) {
	r := &StaticResponder{Text: "Our team will get back to you."}
	got, err := r.Answer(context.Background(), "org-1", "/", "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Our team will get back to you." {
		t.Fatalf("unexpected answer: %q", got)
	}

	empty := &StaticResponder{}
	got, _ = empty.Answer(context.Background(), "org-1", "/", "anything")
	if got != Apology {
		t.Fatalf("empty static responder should apologize, got %q", got)
	}
}
