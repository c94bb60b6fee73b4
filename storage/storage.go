package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dietagent"
)

// ErrNotFound is returned by in-memory stores for a missing object.
var ErrNotFound = errors.New("not found")

// TargetsSource supplies the JSON-encoded NutritionTargets for a run.
type TargetsSource interface {
	Load(ctx context.Context) ([]byte, error)
}

// PlanStore persists accepted plans. It is only written after a run is accepted.
type PlanStore interface {
	Save(ctx context.Context, key string, data []byte) error
}

// PlanRecord is the persisted form of an accepted plan.
type PlanRecord struct {
	RunID       string                     `json:"run_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Targets     dietagent.NutritionTargets `json:"targets"`
	Totals      dietagent.Macros           `json:"totals"`
	Plan        dietagent.CandidatePlan    `json:"plan"`
}

// LoadTargets reads and validates targets from src.
func LoadTargets(ctx context.Context, src TargetsSource) (dietagent.NutritionTargets, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return dietagent.NutritionTargets{}, fmt.Errorf("failed to load targets: %w", err)
	}

	var targets dietagent.NutritionTargets
	if err := json.Unmarshal(data, &targets); err != nil {
		return dietagent.NutritionTargets{}, fmt.Errorf("%w: %v", dietagent.ErrInvalidTargets, err)
	}
	if err := targets.Validate(); err != nil {
		return dietagent.NutritionTargets{}, err
	}
	return targets, nil
}

// SavePlan writes an accepted plan under the run's key and returns the key.
func SavePlan(ctx context.Context, store PlanStore, runID string, targets dietagent.NutritionTargets, plan dietagent.CandidatePlan) (string, error) {
	record := PlanRecord{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Targets:     targets,
		Totals:      plan.Totals(),
		Plan:        plan,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan record: %w", err)
	}

	key := PlanKey(runID)
	if err := store.Save(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to save plan %s: %w", key, err)
	}
	return key, nil
}

// PlanKey is the object name of a run's plan, relative to the store's root.
func PlanKey(runID string) string {
	return runID + ".json"
}

// TestTargetsSource is a simple in-memory implementation for testing
type TestTargetsSource struct {
	data []byte
	err  error
}

func NewTestTargetsSource(data []byte) *TestTargetsSource {
	return &TestTargetsSource{data: data}
}

func NewTestTargetsSourceWithError() *TestTargetsSource {
	return &TestTargetsSource{err: ErrNotFound}
}

func (t *TestTargetsSource) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// MemoryPlanStore keeps saved plans in memory.
type MemoryPlanStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func NewMemoryPlanStore() *MemoryPlanStore {
	return &MemoryPlanStore{objects: make(map[string][]byte)}
}

func NewMemoryPlanStoreWithError(err error) *MemoryPlanStore {
	return &MemoryPlanStore{objects: make(map[string][]byte), err: err}
}

func (m *MemoryPlanStore) Save(ctx context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryPlanStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, nil
}

func (m *MemoryPlanStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
