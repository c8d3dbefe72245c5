// Package llm implements the capability interfaces on top of a generative
// model that supports JSON-schema constrained output. Gemini (through the
// genai SDK) and OpenAI-compatible endpoints (through openai-go) are
// supported.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"kycgate/internal/capability"
)

// Attachment is inline binary content sent alongside the prompt.
type Attachment struct {
	MimeType string
	Data     []byte
}

// Request is one structured-generation call.
type Request struct {
	Capability  string
	System      string
	Prompt      string
	Attachments []Attachment
	SchemaName  string
	Schema      json.RawMessage
}

// Generator returns the raw JSON text produced for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ClientConfig holds the settings shared by both SDK-backed generators.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// gateway is the thin layer every SDK call goes through: client-side rate
// limiting, request metrics and the capability error taxonomy.
type gateway struct {
	provider string
	limiter  *rate.Limiter
}

func newGateway(provider string, rps float64, burst int) gateway {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return gateway{provider: provider, limiter: rate.NewLimiter(limit, burst)}
}

// do runs one SDK call. status extracts the HTTP status from an SDK error,
// returning 0 when the failure never reached the server.
func (g gateway) do(ctx context.Context, capName string, call func(ctx context.Context) error, status func(error) int) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return capability.NewError(capability.ErrorRateLimited, capName, "rate limiter wait", err)
	}

	start := time.Now()
	err := call(ctx)
	if err == nil {
		observeRequest(g.provider, capName, "200", time.Since(start))
		return nil
	}

	if code := status(err); code > 0 {
		observeRequest(g.provider, capName, fmt.Sprint(code), time.Since(start))
		return capability.NewError(capability.CategoryFromStatus(code), capName,
			fmt.Sprintf("%s returned status %d", g.provider, code), err)
	}
	observeRequest(g.provider, capName, "transport_error", time.Since(start))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isTimeout(err) {
		return capability.NewError(capability.ErrorTimeout, capName, "request timed out", err)
	}
	return capability.NewError(capability.ErrorOutage, capName, "request failed", err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// GeminiClient calls generateContent with a JSON response schema.
type GeminiClient struct {
	gateway
	client *genai.Client
	model  string
}

// NewGeminiClient builds a client. An empty BaseURL targets the public API.
func NewGeminiClient(ctx context.Context, cfg ClientConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		gateway: newGateway("gemini", cfg.RequestsPerSecond, cfg.Burst),
		client:  client,
		model:   cfg.Model,
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MimeType))
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if len(req.Schema) > 0 {
		config.ResponseJsonSchema = req.Schema
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	err := c.do(ctx, req.Capability, func(ctx context.Context) error {
		var err error
		resp, err = c.client.Models.GenerateContent(ctx, c.model,
			[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
		return err
	}, geminiStatus)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", capability.NewError(capability.ErrorContractMismatch, req.Capability, "gemini returned no candidates", nil)
	}
	text := resp.Text()
	if text == "" {
		return "", capability.NewError(capability.ErrorContractMismatch, req.Capability, "gemini returned no text", nil)
	}
	return text, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint with a
// json_schema response format.
type OpenAIClient struct {
	gateway
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client. An empty BaseURL targets api.openai.com.
// BaseURL is the host root; the SDK appends v1/chat/completions.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.httpClient()),
		// The reasoner owns retries.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1/"))
	}
	return &OpenAIClient{
		gateway: newGateway("openai", cfg.RequestsPerSecond, cfg.Burst),
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	if len(req.Attachments) == 0 {
		messages = append(messages, openai.UserMessage(req.Prompt))
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
		for _, a := range req.Attachments {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(a),
			}))
		}
		messages = append(messages, openai.UserMessage(parts))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
				},
			},
		},
	}

	var resp *openai.ChatCompletion
	err := c.do(ctx, req.Capability, func(ctx context.Context) error {
		var err error
		resp, err = c.client.Chat.Completions.New(ctx, params)
		return err
	}, openAIStatus)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", capability.NewError(capability.ErrorContractMismatch, req.Capability, "openai: empty choices in response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(a Attachment) string {
	return "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

func openAIStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
