package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/wesm/sessionctl/internal/sessionerr"
)

// SDKWorker is the in-process worker mode of §4.5 Mode 1: it calls a
// model provider's SDK directly rather than shelling out to a CLI.
// The provider is chosen by a prefix on the configured model name
// ("claude-..." selects Anthropic, anything else is routed to the
// OpenAI-compatible client), mirroring the provider-dispatch-by-name
// convention the rest of the pack's LLM-facing code uses.
type SDKWorker struct {
	Model         string
	AnthropicKey  string
	OpenAIKey     string
	OpenAIBaseURL string
	MaxTokens     int64
}

// NewSDKWorker constructs a worker for model, reading API keys from
// the environment the way the teacher's config layer reads agent
// discovery directories: only as a default, always overridable.
func NewSDKWorker(model, anthropicKey, openaiKey, openaiBaseURL string) *SDKWorker {
	return &SDKWorker{
		Model:         model,
		AnthropicKey:  anthropicKey,
		OpenAIKey:     openaiKey,
		OpenAIBaseURL: openaiBaseURL,
		MaxTokens:     2048,
	}
}

func (w *SDKWorker) Analyze(ctx context.Context, req ChunkRequest) (ChunkVerdicts, error) {
	prompt := BuildPrompt(req)

	var (
		text string
		err  error
	)
	if strings.HasPrefix(w.Model, "claude-") {
		text, err = w.analyzeAnthropic(ctx, prompt)
	} else {
		text, err = w.analyzeOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.WorkerTimeout, "sdk worker analyze", err)
	}

	verdicts := ParseVerdicts(text)
	if verdicts == nil && strings.TrimSpace(text) != "" {
		return nil, sessionerr.New(sessionerr.WorkerReplyUnparseable,
			fmt.Sprintf("chunk %d: worker reply had no parseable verdict array", req.ChunkIndex))
	}
	return verdicts, nil
}

func (w *SDKWorker) analyzeAnthropic(ctx context.Context, prompt string) (string, error) {
	client := anthropic.NewClient(anthropicoption.WithAPIKey(w.AnthropicKey))

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(w.Model),
		MaxTokens: w.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (w *SDKWorker) analyzeOpenAI(ctx context.Context, prompt string) (string, error) {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(w.OpenAIKey)}
	if w.OpenAIBaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(w.OpenAIBaseURL))
	}
	client := openai.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: w.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
