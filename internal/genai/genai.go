// Package genai wraps the OpenAI API for the dialogue engine.
//
// It exposes the small set of language operations the engine needs:
// intent classification, product and quantity extraction, list
// disambiguation and free-form reply generation. Every call runs under a
// single uniform timeout so no flow handler blocks on a slow model.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// DefaultTimeout bounds every model call.
const DefaultTimeout = 20 * time.Second

// ClassifyOther is the sentinel label returned when classification fails or
// produces an unexpected answer. Callers treat it as "no recognized intent".
const ClassifyOther = "otro"

// ProductQuery is one product mention extracted from a free-form order
// message. Quantity is 0 when the customer did not state one.
type ProductQuery struct {
	Query    string `json:"producto"`
	Quantity int    `json:"cantidad"`
}

// ClientInterface defines the language operations used by the flow package.
// Implemented by Client and by test fakes.
type ClientInterface interface {
	// Classify returns one of the labels the system prompt asks for, in
	// lowercase with surrounding quotes stripped. It never returns an
	// error: any failure yields ClassifyOther.
	Classify(ctx context.Context, systemPrompt, userMessage string) string

	// ExtractProducts pulls product mentions and quantities out of an
	// order message via function calling.
	ExtractProducts(ctx context.Context, text string) ([]ProductQuery, error)

	// ExtractQuantity interprets a reply to "how many?" as a count.
	ExtractQuantity(ctx context.Context, text string) (int, error)

	// DisambiguateIndex matches a customer reply against a numbered list
	// of options and returns the 1-based index.
	DisambiguateIndex(ctx context.Context, options []string, reply string) (int, error)

	// GenerateReply produces a conversational answer.
	GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   openai.ChatModel
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client implements ClientInterface against the OpenAI API.
type Client struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient creates a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: openai.ChatModelGPT4oMini, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	slog.Debug("GenAI client created", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// withTimeout derives the bounded context used for every model call.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Classify returns a single normalized label, or ClassifyOther on failure.
func (c *Client) Classify(ctx context.Context, systemPrompt, userMessage string) string {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		Temperature: param.NewOpt(0.0),
		MaxTokens:   param.NewOpt(int64(20)),
	})
	if err != nil {
		slog.Error("GenAI Classify failed, returning sentinel", "error", err)
		return ClassifyOther
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI Classify returned no choices, returning sentinel")
		return ClassifyOther
	}
	label := NormalizeLabel(resp.Choices[0].Message.Content)
	slog.Debug("GenAI Classify", "label", label)
	return label
}

// extractProductsTool is the function-calling schema for order messages.
var extractProductsTool = openai.ChatCompletionToolParam{
	Type: "function",
	Function: shared.FunctionDefinitionParam{
		Name:        "extraer_productos",
		Description: openai.String("Extrae los productos mencionados en un pedido, con su cantidad si el cliente la indica."),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"productos": map[string]interface{}{
					"type":        "array",
					"description": "Lista de productos mencionados en el mensaje",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"producto": map[string]interface{}{
								"type":        "string",
								"description": "Nombre del producto tal como lo menciona el cliente",
							},
							"cantidad": map[string]interface{}{
								"type":        "integer",
								"description": "Cantidad pedida, 0 si no se indica",
							},
						},
						"required": []string{"producto"},
					},
				},
			},
			"required": []string{"productos"},
		},
	},
}

// ExtractProducts pulls product mentions out of an order message.
func (c *Client) ExtractProducts(ctx context.Context, text string) ([]ProductQuery, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Sos un asistente que extrae productos y cantidades de mensajes de pedidos. Usá la función extraer_productos."),
			openai.UserMessage(text),
		},
		Tools:       []openai.ChatCompletionToolParam{extractProductsTool},
		Temperature: param.NewOpt(0.0),
	})
	if err != nil {
		return nil, fmt.Errorf("product extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("product extraction returned no choices")
	}

	toolCalls := resp.Choices[0].Message.ToolCalls
	if len(toolCalls) == 0 {
		slog.Debug("GenAI ExtractProducts: no tool call, no products found")
		return nil, nil
	}

	var args struct {
		Products []ProductQuery `json:"productos"`
	}
	if err := json.Unmarshal([]byte(toolCalls[0].Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse extraction arguments: %w", err)
	}

	products := make([]ProductQuery, 0, len(args.Products))
	for _, p := range args.Products {
		p.Query = strings.TrimSpace(p.Query)
		if p.Query == "" {
			continue
		}
		if p.Quantity < 0 {
			p.Quantity = 0
		}
		products = append(products, p)
	}
	slog.Debug("GenAI ExtractProducts", "count", len(products))
	return products, nil
}

// ExtractQuantity interprets a reply to "how many?" as a count.
func (c *Client) ExtractQuantity(ctx context.Context, text string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("El cliente responde cuántas unidades quiere. Respondé únicamente con el número entero, sin texto. Si no se entiende, respondé 0."),
			openai.UserMessage(text),
		},
		Temperature: param.NewOpt(0.0),
		MaxTokens:   param.NewOpt(int64(10)),
	})
	if err != nil {
		return 0, fmt.Errorf("quantity extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("quantity extraction returned no choices")
	}
	qty, err := strconv.Atoi(NormalizeLabel(resp.Choices[0].Message.Content))
	if err != nil {
		return 0, fmt.Errorf("quantity extraction produced a non-numeric answer: %w", err)
	}
	return qty, nil
}

// DisambiguateIndex matches a reply against a numbered option list.
func (c *Client) DisambiguateIndex(ctx context.Context, options []string, reply string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("El cliente debe elegir una opción de esta lista:\n")
	for i, opt := range options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, opt)
	}
	sb.WriteString("Respondé únicamente con el número de la opción elegida. Si ninguna coincide, respondé 0.")

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(sb.String()),
			openai.UserMessage(reply),
		},
		Temperature: param.NewOpt(0.0),
		MaxTokens:   param.NewOpt(int64(10)),
	})
	if err != nil {
		return 0, fmt.Errorf("disambiguation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("disambiguation returned no choices")
	}
	idx, err := strconv.Atoi(NormalizeLabel(resp.Choices[0].Message.Content))
	if err != nil || idx < 1 || idx > len(options) {
		return 0, fmt.Errorf("disambiguation produced no valid option index")
	}
	return idx, nil
}

// GenerateReply produces a conversational answer.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
	})
	if err != nil {
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reply generation returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// NormalizeLabel lowercases a classifier answer and strips the wrapping the
// model sometimes adds (quotes, backticks, trailing period).
func NormalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
