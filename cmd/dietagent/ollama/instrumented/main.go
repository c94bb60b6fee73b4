package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dietagent"
	"dietagent/coordinator"
	"dietagent/generator/ollama"
	"dietagent/slack"
	"dietagent/storage"
)

func main() {
	ctx := context.Background()

	var modelConfig dietagent.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var agentConfig dietagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	targetsPath := argOr(1, agentConfig.ArtifactsTargetsPath)
	targets, err := storage.LoadTargets(ctx, storage.NewFileTargetsSource(targetsPath))
	if err != nil {
		slog.Error("SETUP: Failed to load targets", "path", targetsPath, "error", err)
		return
	}
	slog.Info("SETUP: Targets loaded", "path", targetsPath, "calories", targets.Calories, "meals_per_day", targets.MealsPerDay)

	logger, cleanup, err := newCoordinationLogger(agentConfig.ArtifactsPlansDir, modelConfig.ModelID)
	if err != nil {
		slog.Error("SETUP: Failed to create coordination logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush coordination log", "error", err)
		}
	}()

	gen, err := ollama.NewGenerator(ollama.Opts{
		BaseEndpoint: agentConfig.BaseOllamaEndpoint,
		ModelID:      modelConfig.ModelID,
		HTTPClient:   http.DefaultClient,
		Temperature:  float64(modelConfig.Temperature),
		TopP:         float64(modelConfig.TopP),
	})
	if err != nil {
		slog.Error("SETUP: Failed to create plan generator", "error", err)
		return
	}

	tracerProvider, meterProvider, otelShutdown, err := dietagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	runID := uuid.NewString()
	ctx = coordinator.ContextWithRunID(ctx, runID)

	tracer := tracerProvider.Tracer(dietagent.TracerNameOllama)
	ctx, span := tracer.Start(ctx, "dietagent.ollama.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
	))
	defer span.End()

	c := coordinator.NewCoordinator(gen, agentConfig.MaxCorrections, logger, tracerProvider, meterProvider)
	plan, err := c.GenerateValidatedPlan(ctx, targets)
	if err != nil {
		slog.Error("FAILURE: No plan accepted", "error", err)
		var fatal *coordinator.FatalError
		if agentConfig.DebugDump && errors.As(err, &fatal) {
			dietagent.Dump(os.Stderr, fatal.LastRejection)
		}
		return
	}

	if agentConfig.DebugDump {
		dietagent.Dump(os.Stdout, plan)
	}

	key, err := storage.SavePlan(ctx, storage.NewFilePlanStore(agentConfig.ArtifactsPlansDir), runID, targets, plan)
	if err != nil {
		slog.Error("RESULT: Failed to save plan", "error", err)
		return
	}
	slog.Info("RESULT: Plan saved", "dir", agentConfig.ArtifactsPlansDir, "key", key)

	webhookURL := agentConfig.SlackWebhookURL
	if webhookURL == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhookURL = testServer.URL
	}

	slackClient := slack.NewClient(webhookURL, http.DefaultClient)
	if err := slackClient.PostPlan(ctx, agentConfig.SlackChannel, runID, plan); err != nil {
		slog.Error("Failed to post plan to Slack", "error", err)
	}
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func newCoordinationLogger(dir, modelID string) (dietagent.CoordinationLogger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	logFilePath := dietagent.NewCoordinationLogFilePath(dir, modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := dietagent.NewFileCoordinationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
