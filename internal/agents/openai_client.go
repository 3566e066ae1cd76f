package agents

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIClient implements LLMClient over an OpenAI-compatible chat API
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI-backed LLM client. baseURL may be
// empty for the default endpoint.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// Complete runs one chat completion and returns the raw text content.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Parts) == 0 {
		return "", fmt.Errorf("completion request has no parts")
	}

	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, part := range req.Parts {
		switch part.Kind {
		case PartText:
			content = append(content, openai.TextContentPart(part.Text))
		case PartImage:
			dataURL := fmt.Sprintf("data:%s;base64,%s", part.MimeType,
				base64.StdEncoding.EncodeToString(part.Data))
			content = append(content, openai.ImageContentPart(
				openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
		case PartFile:
			dataURL := fmt.Sprintf("data:%s;base64,%s", part.MimeType,
				base64.StdEncoding.EncodeToString(part.Data))
			content = append(content, openai.FileContentPart(
				openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(dataURL),
					Filename: openai.String(part.Filename),
				}))
		default:
			return "", fmt.Errorf("unknown part kind: %s", part.Kind)
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(content))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
