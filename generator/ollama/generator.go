package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"dietagent"
	"dietagent/generator"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrTruncated is returned when the model stopped on its context or token limit.
var ErrTruncated = errors.New("ollama response truncated")

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

// Generator is a dietagent.PlanGenerator backed by Ollama's /api/chat with a
// JSON-schema structured output format.
type Generator struct {
	endpoint   string
	model      string
	httpClient dietagent.HTTPClient
	options    options
	format     *jsonschema.Schema
	tracer     trace.Tracer
}

type Opts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   dietagent.HTTPClient
	Temperature  float64
	TopP         float64
}

func NewGenerator(opts Opts) (*Generator, error) {
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, fmt.Errorf("model id is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	o := options{
		Temperature:   0.2,
		TopP:          0.9,
		RepeatPenalty: 1.05,
		NumCtx:        16384,
	}
	if opts.Temperature != 0 {
		o.Temperature = opts.Temperature
	}
	if opts.TopP != 0 {
		o.TopP = opts.TopP
	}

	return &Generator{
		endpoint:   strings.TrimSuffix(opts.BaseEndpoint, "/") + "/api/chat",
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		options:    o,
		format:     generator.PlanSchema(),
		tracer:     otel.Tracer(dietagent.TracerNameOllama),
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string             `json:"model"`
	Messages []wireMessage      `json:"messages"`
	Stream   bool               `json:"stream"`
	Format   *jsonschema.Schema `json:"format,omitempty"`
	Options  options            `json:"options,omitempty"`
}

type wireResponse struct {
	Message    wireMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}

func (g *Generator) Generate(ctx context.Context, targets dietagent.NutritionTargets, correction *dietagent.Rejection) (dietagent.CandidatePlan, error) {
	ctx, span := g.tracer.Start(ctx, "Ollama.Generate", trace.WithAttributes(
		attribute.String("model.id", g.model),
		attribute.Bool("correction", correction != nil),
	))
	defer span.End()

	plan, err := g.generate(ctx, targets, correction)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return dietagent.CandidatePlan{}, err
	}
	span.SetAttributes(attribute.Int("plan.meals", len(plan.Meals)))
	return plan, nil
}

func (g *Generator) generate(ctx context.Context, targets dietagent.NutritionTargets, correction *dietagent.Rejection) (dietagent.CandidatePlan, error) {
	reqBody := wireRequest{
		Model:    g.model,
		Messages: buildMessages(targets, correction),
		Stream:   false,
		Format:   g.format,
		Options:  g.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return dietagent.CandidatePlan{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	slog.Info("GENERATOR: Invoking Ollama", "model_id", g.model, "correction", correction != nil, "request_bytes", len(reqBytes))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return dietagent.CandidatePlan{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return dietagent.CandidatePlan{}, fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dietagent.CandidatePlan{}, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return dietagent.CandidatePlan{}, fmt.Errorf("ollama chat: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return dietagent.CandidatePlan{}, fmt.Errorf("%w: undecodable ollama response: %v", dietagent.ErrMalformedPlan, err)
	}
	if wr.DoneReason == "length" {
		slog.Warn("GENERATOR: Ollama stopped on length; consider raising num_ctx")
		return dietagent.CandidatePlan{}, ErrTruncated
	}

	slog.Info("GENERATOR: Ollama chat succeeded", "content_len", len(wr.Message.Content), "done_reason", wr.DoneReason)

	return generator.ParsePlan([]byte(wr.Message.Content))
}

func buildMessages(targets dietagent.NutritionTargets, correction *dietagent.Rejection) []wireMessage {
	return []wireMessage{
		{Role: "system", Content: generator.SystemPrompt},
		{Role: "user", Content: generator.RenderUserMessage(targets, correction)},
	}
}
