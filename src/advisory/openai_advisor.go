package advisory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/username/divrecon/src/config"
)

const systemPrompt = "You are a senior dividend-operations analyst. " +
	"Classify reconciliation breaks, summarise the likely root cause, " +
	"and propose the next operational step. Return JSON with the keys: " +
	"severity (HIGH|MEDIUM|LOW), explanation, recommendation, tags (array of " +
	"short strings), confidence (0-1 float) and automation_mode " +
	"(AUTOPILOT|ASSISTED|HUMAN_REVIEW)."

// OpenAIAdvisor implements the Advisor interface against an OpenAI-compatible
// chat-completions endpoint. Each call is bounded by the configured request
// timeout and is never retried: the caller's fallback path is the retry
// substitute.
type OpenAIAdvisor struct {
	client openai.Client
	model  string
}

func NewOpenAIAdvisor(cfg *config.AppConfig) *OpenAIAdvisor {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.AdvisoryAPIKey),
		option.WithRequestTimeout(cfg.AdvisoryTimeout),
		option.WithMaxRetries(0),
	}
	if cfg.AdvisoryBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.AdvisoryBaseURL))
	}
	return &OpenAIAdvisor{
		client: openai.NewClient(opts...),
		model:  cfg.AdvisoryModel,
	}
}

func (a *OpenAIAdvisor) Available() bool {
	return true
}

func (a *OpenAIAdvisor) Annotate(ctx context.Context, req Request) (Advice, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Advice{}, fmt.Errorf("failed to marshal advisory request: %w", err)
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(a.model),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return Advice{}, fmt.Errorf("advisory call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Advice{}, fmt.Errorf("advisory response contained no choices")
	}
	return ParseAdvice([]byte(completion.Choices[0].Message.Content))
}
