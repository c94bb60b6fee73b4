package main

import (
	"context"
	"fmt"
	"log/slog"

	"dietagent"
	"dietagent/coordinator"
	"dietagent/generator/bedrock"
	"dietagent/storage"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
)

// Params carries the targets inline or as an S3 key in ARTIFACTS_S3_BUCKET.
type Params struct {
	Targets    *dietagent.NutritionTargets `json:"targets,omitempty"`
	TargetsKey string                      `json:"targets_key,omitempty"`
}

type Results struct {
	RunID   string                  `json:"run_id"`
	PlanKey string                  `json:"plan_key"`
	Plan    dietagent.CandidatePlan `json:"plan"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig dietagent.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode model config: %w", err)
		}

		var agentConfig dietagent.AgentConfig
		if err := envdecode.Decode(&agentConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode agent config: %w", err)
		}

		var s3Config dietagent.S3Config
		if err := envdecode.Decode(&s3Config); err != nil {
			return Results{}, fmt.Errorf("missing S3 config: %w", err)
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		targets, err := resolveTargets(ctx, params, storage.NewS3TargetsSource(s3Client, s3Config.Bucket, params.TargetsKey))
		if err != nil {
			slog.Error("SETUP: Failed to resolve targets", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: Targets resolved", "calories", targets.Calories, "meals_per_day", targets.MealsPerDay)

		tracerProvider, meterProvider, otelShutdown, err := dietagent.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		gen := bedrock.NewGenerator(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		c := coordinator.NewCoordinator(gen, agentConfig.MaxCorrections, dietagent.NewStdoutCoordinationLogger(), tracerProvider, meterProvider)

		runID := uuid.NewString()
		if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
			runID = lc.AwsRequestID
		}
		ctx = coordinator.ContextWithRunID(ctx, runID)

		plan, err := c.GenerateValidatedPlan(ctx, targets)
		if err != nil {
			slog.Error("RESULT: No plan accepted", "error", err)
			return Results{}, err
		}

		store := storage.NewS3PlanStore(s3Client, s3Config.Bucket, s3Config.PlanPrefix)
		key, err := storage.SavePlan(ctx, store, runID, targets, plan)
		if err != nil {
			slog.Error("RESULT: Failed to save plan", "error", err)
			return Results{}, err
		}
		slog.Info("RESULT: Plan saved", "bucket", s3Config.Bucket, "prefix", s3Config.PlanPrefix, "key", key)

		return Results{RunID: runID, PlanKey: key, Plan: plan}, nil
	}

	lambda.Start(fn)
}

func resolveTargets(ctx context.Context, params Params, src storage.TargetsSource) (dietagent.NutritionTargets, error) {
	if params.Targets != nil {
		return *params.Targets, nil
	}
	if params.TargetsKey == "" {
		return dietagent.NutritionTargets{}, fmt.Errorf("%w: event has neither targets nor targets_key", dietagent.ErrInvalidTargets)
	}
	return storage.LoadTargets(ctx, src)
}
