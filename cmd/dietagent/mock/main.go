package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"

	"dietagent"
	"dietagent/coordinator"
	"dietagent/generator/mock"
	"dietagent/storage"
)

func main() {
	targetsPath := flag.String("targets", "", "path to a targets JSON file (defaults to ARTIFACTS_TARGETS_PATH)")
	skew := flag.Float64("skew", mock.DefaultSkew, "fraction by which the first draft overshoots the targets")
	save := flag.Bool("save", false, "save the accepted plan to ARTIFACTS_PLANS_DIR")
	flag.Parse()

	ctx := context.Background()

	var agentConfig dietagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}
	if *targetsPath == "" {
		*targetsPath = agentConfig.ArtifactsTargetsPath
	}

	targets, err := storage.LoadTargets(ctx, storage.NewFileTargetsSource(*targetsPath))
	if err != nil {
		log.Fatalf("SETUP: Failed to load targets from %s: %s", *targetsPath, err)
	}

	tracerProvider, meterProvider, otelShutdown, err := dietagent.InitOtel(ctx)
	if err != nil {
		log.Fatalf("SETUP: Failed to initialize OpenTelemetry: %s", err)
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	gen := mock.NewGenerator(*skew)
	attempts := dietagent.NewFileCoordinationLogger(os.Stderr)
	c := coordinator.NewCoordinator(gen, agentConfig.MaxCorrections, attempts, tracerProvider, meterProvider)

	runID := uuid.NewString()
	plan, err := c.GenerateValidatedPlan(coordinator.ContextWithRunID(ctx, runID), targets)
	if flushErr := attempts.Flush(); flushErr != nil {
		slog.Error("RESULT: Failed to write attempt log", "error", flushErr)
	}
	if err != nil {
		log.Fatalf("RESULT: No plan accepted: %s", err)
	}
	slog.Info("RESULT: Plan accepted", "run_id", runID, "generator_calls", gen.Calls())

	if agentConfig.DebugDump {
		dietagent.Dump(os.Stderr, plan)
	}

	if *save {
		key, err := storage.SavePlan(ctx, storage.NewFilePlanStore(agentConfig.ArtifactsPlansDir), runID, targets, plan)
		if err != nil {
			log.Fatalf("RESULT: Failed to save plan: %s", err)
		}
		slog.Info("RESULT: Plan saved", "dir", agentConfig.ArtifactsPlansDir, "key", key)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan); err != nil {
		log.Fatalf("RESULT: Failed to encode plan: %s", err)
	}
}
