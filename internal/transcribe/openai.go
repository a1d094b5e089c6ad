package transcribe

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
)

const defaultModel = "gpt-4o"

// OpenAIConfig holds configuration for the OpenAI transcription client.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string        // used when a job does not request a model
	Timeout      time.Duration // per-request HTTP timeout (default 120s)
	MaxRetries   int           // attempts per call (default 3)
	RetryDelay   time.Duration // base delay between attempts (default 2s)
	BaseURL      string        // optional (tests)
	HTTPClient   *http.Client  // optional (tests)
	Logger       *slog.Logger
}

// OpenAIClient implements Transcriber against the OpenAI chat completions
// API with a vision-capable model. Calls are retried on transient failures
// and guarded by a circuit breaker so a failing upstream does not burn the
// whole queue's time budget.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	breaker      *gobreaker.CircuitBreaker[*Result]
	logger       *slog.Logger
}

// NewOpenAIClient creates a transcription client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:    "openai-transcribe",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
	})

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		breaker:      breaker,
		logger:       logger.With("component", "transcriber"),
	}
}

// Transcribe sends the page image to the model and returns the raw response.
func (c *OpenAIClient) Transcribe(ctx context.Context, pageImage []byte, modelID string) (*Result, error) {
	if len(pageImage) == 0 {
		return nil, fmt.Errorf("page image is required")
	}
	model := modelID
	if model == "" {
		model = c.defaultModel
	}

	result, err := c.breaker.Execute(func() (*Result, error) {
		return retry.DoWithData(
			func() (*Result, error) { return c.call(ctx, pageImage, model) },
			retry.Context(ctx),
			retry.Attempts(uint(c.maxRetries)),
			retry.Delay(c.retryDelay),
			retry.LastErrorOnly(true),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed for model %s: %w", model, err)
	}
	return result, nil
}

func (c *OpenAIClient) call(ctx context.Context, pageImage []byte, model string) (*Result, error) {
	start := time.Now()
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pageImage)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(userPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("chat completion returned empty content")
	}

	c.logger.Debug("transcription complete",
		"model", model,
		"prompt_version", PromptVersion,
		"duration", time.Since(start),
		"tokens", resp.Usage.TotalTokens,
	)

	return &Result{Raw: content, ModelUsed: model}, nil
}
