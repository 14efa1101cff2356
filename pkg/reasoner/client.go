package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client sends a single structured-output request to the reasoning service.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request asks for a JSON object conforming to Schema.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int
}

// Response carries the raw text reply and token accounting.
type Response struct {
	Text  string
	Model string
	Usage TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD. Unknown models are priced
// at fallbackPer1K dollars per thousand tokens.
func (u TokenUsage) EstimateCost(model string, fallbackPer1K float64) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return float64(u.Total()) / 1000 * fallbackPer1K
	}
	return (float64(u.InputTokens)/1e6)*pricing[0] + (float64(u.OutputTokens)/1e6)*pricing[1]
}

// Config configures the SDK-backed client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client  sdk.Client
	limiter *rate.Limiter
}

// NewClient creates a client backed by the SDK. Requests are never retried.
func NewClient(cfg Config) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}

	return &sdkClient{
		client:  sdk.NewClient(opts...),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *sdkClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "reasoner: rate limit wait")
	}

	system, err := systemWithSchema(req.System, req.Schema)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		System:      []sdk.TextBlockParam{{Text: system}},
		Temperature: sdk.Float(req.Temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "reasoner: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

func systemWithSchema(system string, schema map[string]any) (string, error) {
	if schema == nil {
		return system, nil
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "reasoner: encode schema")
	}
	return system +
		"\n\nRespond with a single JSON object that conforms to this JSON Schema. " +
		"Do not include any text outside the JSON object.\n\n" + string(data), nil
}

// ExtractJSON returns the outermost JSON object in text, or text unchanged
// when no braces are present.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// IsTimeout reports whether err came from a deadline rather than a service failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
