package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wolfman30/finchat/pkg/logging"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " {\"intent\":\"unknown\"} "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
	}}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:  "anthropic.claude",
		System: []string{"classifique"},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "extra"},
			{Role: ChatRoleUser, Content: "oi"},
			{Role: ChatRoleAssistant, Content: "  "},
		},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != `{"intent":"unknown"}` || resp.Usage.TotalTokens != 15 || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(api.input.System) != 2 || len(api.input.Messages) != 1 {
		t.Fatalf("expected 2 system blocks and 1 message, got %d/%d", len(api.input.System), len(api.input.Messages))
	}
	if aws.ToInt32(api.input.InferenceConfig.MaxTokens) != 100 {
		t.Fatalf("max tokens not forwarded")
	}
}

func TestBedrockLLMClient_Errors(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")})
	if _, err := client.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatalf("expected model id error")
	}
	if _, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "x"}}}); err == nil {
		t.Fatalf("expected api error")
	}
	if _, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: "tool", Content: "x"}}}); err == nil {
		t.Fatalf("expected unsupported role error")
	}
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	fallback := &stubLLM{text: "from fallback"}
	client := NewFallbackLLMClient(primary, fallback, logging.Discard())

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "from fallback" || len(primary.requests) != 1 || len(fallback.requests) != 1 {
		t.Fatalf("unexpected fallback behaviour: %+v", resp)
	}

	noFallback := NewFallbackLLMClient(primary, nil, logging.Discard())
	if _, err := noFallback.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatalf("expected primary error without fallback")
	}

	ok := NewFallbackLLMClient(&stubLLM{text: "primary"}, fallback, logging.Discard())
	resp, _ = ok.Complete(context.Background(), LLMRequest{})
	if resp.Text != "primary" || len(fallback.requests) != 1 {
		t.Fatalf("fallback should not be called when primary succeeds")
	}
}
