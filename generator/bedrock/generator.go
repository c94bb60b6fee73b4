package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dietagent"
	"dietagent/generator"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultModelID is an inference profile ID, not a foundation model ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// A full day of meals with ingredients and steps needs more room than a chat turn.
	defaultMaxTokens = 2048

	// Low temperature and top_p keep tool input and JSON output consistent.
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

var (
	// ErrMaxTokens is returned when the model ran out of tokens mid-plan.
	ErrMaxTokens = errors.New("model hit MaxTokens limit")

	// ErrBlocked is returned when Bedrock filtered the response.
	ErrBlocked = errors.New("model response blocked by Bedrock safety filters")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Options struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// Generator is a dietagent.PlanGenerator backed by the Bedrock Converse API.
// The model is forced to answer through the submit_meal_plan tool.
type Generator struct {
	brc    bedrockRuntimeClient
	opts   Options
	tracer trace.Tracer
}

func NewGenerator(brc bedrockRuntimeClient, opts Options) *Generator {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &Generator{
		brc:    brc,
		opts:   opts,
		tracer: otel.Tracer(dietagent.TracerNameBedrock),
	}
}

func (g *Generator) Generate(ctx context.Context, targets dietagent.NutritionTargets, correction *dietagent.Rejection) (dietagent.CandidatePlan, error) {
	ctx, span := g.tracer.Start(ctx, "Bedrock.Generate", trace.WithAttributes(
		attribute.String("model.id", g.opts.ModelID),
		attribute.Bool("correction", correction != nil),
	))
	defer span.End()

	in, err := g.buildInput(targets, correction)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build input")
		return dietagent.CandidatePlan{}, err
	}

	slog.Info("GENERATOR: Invoking Bedrock", "model_id", g.opts.ModelID, "correction", correction != nil)

	out, err := g.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("GENERATOR: Bedrock converse failed", "error", err, "model_id", g.opts.ModelID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "converse")
		return dietagent.CandidatePlan{}, fmt.Errorf("bedrock converse: %w", err)
	}

	var latency int64
	var inputTokens, outputTokens int32
	if out.Metrics != nil {
		latency = aws.ToInt64(out.Metrics.LatencyMs)
	}
	if out.Usage != nil {
		inputTokens = aws.ToInt32(out.Usage.InputTokens)
		outputTokens = aws.ToInt32(out.Usage.OutputTokens)
	}
	span.SetAttributes(
		attribute.String("stop_reason", string(out.StopReason)),
		attribute.Int("tokens.input", int(inputTokens)),
		attribute.Int("tokens.output", int(outputTokens)),
	)
	slog.Info("GENERATOR: Bedrock converse succeeded",
		"stop_reason", out.StopReason,
		"latency_ms", latency,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
	)

	plan, err := planFromOutput(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse output")
		return dietagent.CandidatePlan{}, err
	}
	span.SetAttributes(attribute.Int("plan.meals", len(plan.Meals)))
	return plan, nil
}

func (g *Generator) buildInput(targets dietagent.NutritionTargets, correction *dietagent.Rejection) (*bedrockruntime.ConverseInput, error) {
	spec, err := submitToolSpec()
	if err != nil {
		return nil, err
	}

	content := []types.ContentBlock{
		&types.ContentBlockMemberText{Value: generator.RenderRequest(targets)},
	}
	if correction != nil {
		content = append(content, &types.ContentBlockMemberText{Value: generator.RenderCorrection(correction)})
	}

	return &bedrockruntime.ConverseInput{
		ModelId: aws.String(g.opts.ModelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: generator.SystemPrompt},
		},
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(g.opts.MaxTokens),
			Temperature: aws.Float32(g.opts.Temperature),
			TopP:        aws.Float32(g.opts.TopP),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(generator.SubmitToolName)},
			},
		},
	}, nil
}

// submitToolSpec goes through SchemaMap so the document sees the schema's
// custom JSON form rather than its Go fields.
func submitToolSpec() (types.ToolSpecification, error) {
	schema, err := generator.SchemaMap(generator.PlanSchema())
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to build tool schema for %s: %w", generator.SubmitToolName, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(generator.SubmitToolName),
		Description: aws.String(generator.SubmitToolDescription),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schema),
		},
	}, nil
}

func planFromOutput(out *bedrockruntime.ConverseOutput) (dietagent.CandidatePlan, error) {
	switch out.StopReason {
	case types.StopReasonToolUse:
		input, err := submittedPlan(out)
		if err != nil {
			return dietagent.CandidatePlan{}, err
		}
		return generator.ParsePlan(input)

	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		// Some models answer in text despite the forced tool choice.
		if input, err := submittedPlan(out); err == nil {
			return generator.ParsePlan(input)
		}
		text := textFromOutput(out)
		if text == "" {
			return dietagent.CandidatePlan{}, fmt.Errorf("%w: empty model response", dietagent.ErrMalformedPlan)
		}
		return generator.ParsePlan([]byte(text))

	case types.StopReasonMaxTokens:
		slog.Warn("GENERATOR: Model hit MaxTokens limit; consider raising MAX_TOKENS")
		return dietagent.CandidatePlan{}, ErrMaxTokens

	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		slog.Warn("GENERATOR: Model response blocked", "stop_reason", out.StopReason)
		return dietagent.CandidatePlan{}, ErrBlocked

	default:
		return dietagent.CandidatePlan{}, fmt.Errorf("unexpected stop reason %q", out.StopReason)
	}
}

// submittedPlan returns the JSON input of the first submit_meal_plan tool use.
func submittedPlan(out *bedrockruntime.ConverseOutput) ([]byte, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, fmt.Errorf("%w: no message in output", dietagent.ErrMalformedPlan)
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != generator.SubmitToolName {
			continue
		}
		if tu.Value.Input == nil {
			return nil, fmt.Errorf("%w: %s called without input", dietagent.ErrMalformedPlan, generator.SubmitToolName)
		}
		data, err := tu.Value.Input.MarshalSmithyDocument()
		if err != nil {
			return nil, fmt.Errorf("%w: tool input: %v", dietagent.ErrMalformedPlan, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s was not called", dietagent.ErrMalformedPlan, generator.SubmitToolName)
}

// textFromOutput joins the assistant's text blocks, preferring the last one
// that looks like a single JSON object.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
