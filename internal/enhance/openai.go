package enhance

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const enhancePromptTemplate = `Recreate this hand-drawn diagram as a clean, professional figure suitable for a LaTeX academic document.

Description: %s

Requirements:
- Clean, minimalist style matching LaTeX/academic paper aesthetics
- Black lines on white background
- Preserve all text labels, values, and annotations exactly as shown
- Clear geometric shapes and crisp lines
- High contrast, print-ready quality
- Maintain the same layout and spatial relationships
- No decorative elements, pure technical illustration style`

// OpenAIConfig configures the image-edit enhancer.
type OpenAIConfig struct {
	APIKey     string
	Model      string // default gpt-image-1
	Timeout    time.Duration
	BaseURL    string       // optional (tests)
	HTTPClient *http.Client // optional (tests)
	Logger     *slog.Logger
}

// OpenAIEnhancer implements Enhancer with the OpenAI image edit API, using
// the original crop as the reference image.
type OpenAIEnhancer struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIEnhancer creates an image enhancer.
func NewOpenAIEnhancer(cfg OpenAIConfig) *OpenAIEnhancer {
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
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

	return &OpenAIEnhancer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("component", "enhancer"),
	}
}

// Enhance regenerates the region image from its description.
func (e *OpenAIEnhancer) Enhance(ctx context.Context, image []byte, description string) ([]byte, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image is required")
	}

	prompt := fmt.Sprintf(enhancePromptTemplate, description)
	start := time.Now()

	resp, err := e.client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(image), "region.png", "image/png"),
		},
		Prompt: prompt,
		Model:  openai.ImageModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("image edit failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image edit returned no image data")
	}

	enhanced, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode enhanced image: %w", err)
	}

	e.logger.Debug("region enhanced", "model", e.model, "duration", time.Since(start), "bytes", len(enhanced))
	return enhanced, nil
}
