// Package llm implements the moderation evaluator as a structured
// classification prompt against an OpenAI-compatible chat endpoint.
package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed moderationInstr.tmpl
var moderationSystemPrompt string

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
)

type Classification struct {
	Category  string `json:"category" jsonschema:"title=Category,description=The moderation category of the utterance,enum=OFFENSIVE,enum=OFF_BRAND,enum=VIOLENCE,enum=NONE"`
	Rationale string `json:"rationale" jsonschema:"title=Rationale,description=A brief explanation of why the category applies"`
}

var _ guardrails.Evaluator = (*Evaluator)(nil)

type Evaluator struct {
	policyName string
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

type EvaluatorOption func(*Evaluator)

func WithEndpoint(endpoint string) EvaluatorOption {
	return func(e *Evaluator) { e.endpoint = endpoint }
}

func WithModel(model string) EvaluatorOption {
	return func(e *Evaluator) { e.model = model }
}

func WithAPIKey(apiKey string) EvaluatorOption {
	return func(e *Evaluator) { e.apiKey = apiKey }
}

func WithHTTPClient(client *http.Client) EvaluatorOption {
	return func(e *Evaluator) { e.httpClient = client }
}

func NewEvaluator(policyName string, opts ...EvaluatorOption) *Evaluator {
	evaluator := &Evaluator{
		policyName: policyName,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		apiKey:     os.Getenv("OPENAI_API_KEY"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator
}

func (e *Evaluator) Evaluate(ctx context.Context, text string) (guardrails.Result, error) {
	ctx, span := tracer.Start(ctx, "evaluate moderation policy")
	defer span.End()
	span.SetAttributes(attribute.String("moderation.policy", e.policyName))

	classification, err := e.classify(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return guardrails.Result{}, err
	}

	category, err := toCategory(classification.Category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return guardrails.Result{}, err
	}
	span.SetAttributes(attribute.String("moderation.category", string(category)))

	if category == guardrails.CategoryNone {
		return guardrails.Pass(text), nil
	}
	return guardrails.Fail(category, classification.Rationale, text), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string            `json:"name"`
	Schema jsonschema.Schema `json:"schema"`
	Strict bool              `json:"strict"`
}

type chatRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	// Temperature is a pointer so an explicit zero survives omitempty.
	Temperature    *float64       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

func (e *Evaluator) classify(ctx context.Context, text string) (*Classification, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(Classification{})

	systemPrompt := strings.ReplaceAll(moderationSystemPrompt, "{company_name}", e.policyName)

	reqBody := chatRequestBody{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		// Classification must be repeatable.
		Temperature: utils.Ptr(0.0),
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "Classification",
				Schema: *schema,
				Strict: true,
			},
		},
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending moderation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading moderation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("error unmarshalling moderation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no response from moderation classifier")
	}

	classification := Classification{}
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &classification); err != nil {
		return nil, fmt.Errorf("error unmarshalling moderation classification: %w", err)
	}

	return &classification, nil
}

func toCategory(classification string) (guardrails.Category, error) {
	switch classification {
	case "OFFENSIVE":
		return guardrails.CategoryOffensive, nil
	case "OFF_BRAND":
		return guardrails.CategoryOffBrand, nil
	case "VIOLENCE":
		return guardrails.CategoryViolence, nil
	case "NONE":
		return guardrails.CategoryNone, nil
	default:
		return "", fmt.Errorf("unknown moderation category: %s", classification)
	}
}
