package dietagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// CoordinationLogger records every generation attempt of a run.
type CoordinationLogger interface {
	LogAttempt(attempt AttemptLog) error
}

// NewCoordinationLogFilePath returns a log path named after the run start time
// and the model, so runs against different models are easy to tell apart.
func NewCoordinationLogFilePath(dir, model string) string {
	model = strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model))
	return fmt.Sprintf("%s/%d.%s.json", strings.TrimSuffix(dir, "/"), time.Now().Unix(), model)
}

// AttemptLog is one generate/validate pass of the control loop.
type AttemptLog struct {
	RunID      string         `json:"run_id"`
	Attempt    int            `json:"attempt"`
	Timestamp  time.Time      `json:"timestamp"`
	Duration   time.Duration  `json:"duration_ns"`
	Correction *Rejection     `json:"correction,omitempty"`
	Plan       *CandidatePlan `json:"plan,omitempty"`
	Totals     *Macros        `json:"totals,omitempty"`
	Rejection  *Rejection     `json:"rejection,omitempty"`
	State      string         `json:"state"`
	Error      string         `json:"error,omitempty"`
}

// FileCoordinationLogger buffers attempts and writes them as one JSON document
// on Flush. It is safe for concurrent runs sharing one Coordinator.
type FileCoordinationLogger struct {
	mu       sync.Mutex
	attempts []AttemptLog
	writer   io.Writer
}

func NewFileCoordinationLogger(writer io.Writer) *FileCoordinationLogger {
	return &FileCoordinationLogger{
		attempts: make([]AttemptLog, 0),
		writer:   writer,
	}
}

// LogAttempt appends to the buffer; nothing is written until Flush.
func (l *FileCoordinationLogger) LogAttempt(attempt AttemptLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

// Flush writes all buffered attempts to the writer and clears the buffer.
func (l *FileCoordinationLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"coordination_session": map[string]any{
			"timestamp": time.Now(),
			"attempts":  l.attempts,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coordination log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write coordination log: %w", err)
	}

	l.attempts = l.attempts[:0]
	return nil
}

type NoOpCoordinationLogger struct{}

func NewNoOpCoordinationLogger() *NoOpCoordinationLogger {
	return &NoOpCoordinationLogger{}
}

func (*NoOpCoordinationLogger) LogAttempt(AttemptLog) error { return nil }

// StdoutCoordinationLogger writes each attempt as a JSON line (Lambda/CloudWatch).
type StdoutCoordinationLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdoutCoordinationLogger() *StdoutCoordinationLogger {
	return &StdoutCoordinationLogger{w: os.Stdout}
}

func (l *StdoutCoordinationLogger) LogAttempt(attempt AttemptLog) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintln(l.w, string(data))
	return err
}
