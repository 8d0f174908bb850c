package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

const bedrockSystemPrompt = "You are a concise, friendly website assistant. " +
	"Answer the visitor's question about the product in a few sentences. " +
	"If you do not know, say so and suggest talking to the sales team."

// BedrockResponder answers generic turns with a Bedrock Converse call.
type BedrockResponder struct {
	api       bedrockConverseAPI
	modelID   string
	maxTokens int32
}

var _ Responder = (*BedrockResponder)(nil)

// NewBedrockResponder builds a responder for the given model id.
func NewBedrockResponder(api bedrockConverseAPI, modelID string) *BedrockResponder {
	if api == nil {
		panic("fallback: bedrock converse client cannot be nil")
	}
	return &BedrockResponder{api: api, modelID: modelID, maxTokens: 512}
}

// Answer sends the visitor message plus page context to the model.
func (r *BedrockResponder) Answer(ctx context.Context, orgID, pageURL, message string) (string, error) {
	if strings.TrimSpace(r.modelID) == "" {
		return "", errors.New("fallback: bedrock model id is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("fallback: message is required")
	}

	system := []brtypes.SystemContentBlock{
		&brtypes.SystemContentBlockMemberText{Value: bedrockSystemPrompt},
	}
	if pageURL != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{
			Value: fmt.Sprintf("The visitor is currently viewing %s.", pageURL),
		})
	}

	out, err := r.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(r.modelID),
		System:  system,
		Messages: []brtypes.Message{{
			Role: brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: message},
			},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(r.maxTokens),
		},
	})
	if err != nil {
		return "", fmt.Errorf("fallback: converse call failed: %w", err)
	}

	return extractOutputText(out)
}

func extractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("fallback: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("fallback: bedrock response did not include a message output")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("fallback: bedrock response contained no text content blocks")
	}
	return text, nil
}

// StaticResponder returns a fixed answer, used when no model is configured.
type StaticResponder struct {
	Text string
}

var _ Responder = (*StaticResponder)(nil)

func (r *StaticResponder) Answer(ctx context.Context, orgID, pageURL, message string) (string, error) {
	if r.Text == "" {
		return Apology, nil
	}
	return r.Text, nil
}
