package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dietagent"
	"dietagent/generator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements the HTTPClient interface for testing
type mockHTTPClient struct {
	response *http.Response
	err      error
	request  *http.Request
	body     []byte
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.request = req
	if req.Body != nil {
		m.body, _ = io.ReadAll(req.Body)
	}
	return m.response, m.err
}

// createMockResponse creates a mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func chatResponse(t *testing.T, content, doneReason string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"model":       "llama3.2",
		"message":     map[string]any{"role": "assistant", "content": content},
		"done":        true,
		"done_reason": doneReason,
	})
	require.NoError(t, err)
	return string(b)
}

const planContent = `{"meals":[{"name":"Egg scramble","type":"breakfast","calories":1000,"protein":75,"carbs":100,"fat":30},{"name":"Beef chili","type":"dinner","calories":1000,"protein":75,"carbs":100,"fat":30}]}`

func testTargets() dietagent.NutritionTargets {
	return dietagent.NutritionTargets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 60, MealsPerDay: 2}
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name    string
		opts    Opts
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			opts: Opts{BaseEndpoint: "http://localhost:11434", ModelID: "llama3.2", HTTPClient: &mockHTTPClient{}},
			want: options{Temperature: 0.2, TopP: 0.9, RepeatPenalty: 1.05, NumCtx: 16384},
		},
		{
			name: "sampling overrides",
			opts: Opts{BaseEndpoint: "http://localhost:11434/", ModelID: "qwen3", Temperature: 0.7, TopP: 0.5},
			want: options{Temperature: 0.7, TopP: 0.5, RepeatPenalty: 1.05, NumCtx: 16384},
		},
		{
			name:    "missing model",
			opts:    Opts{BaseEndpoint: "http://localhost:11434"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:11434/api/chat", g.endpoint)
			assert.Equal(t, tt.want, g.options)
			assert.NotNil(t, g.httpClient)
			assert.NotNil(t, g.format)
		})
	}
}

func TestGenerator_Generate(t *testing.T) {
	tests := []struct {
		name          string
		response      *http.Response
		err           error
		expectedMeals []string
		expectedErr   error
		errContains   string
	}{
		{
			name:          "structured output",
			response:      createMockResponse(http.StatusOK, chatResponse(t, planContent, "stop")),
			expectedMeals: []string{"Egg scramble", "Beef chili"},
		},
		{
			name:          "fenced output",
			response:      createMockResponse(http.StatusOK, chatResponse(t, "```json\n"+planContent+"\n```", "stop")),
			expectedMeals: []string{"Egg scramble", "Beef chili"},
		},
		{
			name:        "non-200",
			response:    createMockResponse(http.StatusNotFound, `{"error":"model 'llama3.2' not found"}`),
			errContains: "model 'llama3.2' not found",
		},
		{
			name:        "undecodable body",
			response:    createMockResponse(http.StatusOK, `not json`),
			expectedErr: dietagent.ErrMalformedPlan,
		},
		{
			name:        "truncated",
			response:    createMockResponse(http.StatusOK, chatResponse(t, `{"meals":[{"name":"Egg`, "length")),
			expectedErr: ErrTruncated,
		},
		{
			name:        "empty plan",
			response:    createMockResponse(http.StatusOK, chatResponse(t, `{"meals":[]}`, "stop")),
			expectedErr: dietagent.ErrMalformedPlan,
		},
		{
			name:        "transport error",
			err:         errors.New("connection refused"),
			errContains: "ollama chat: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockHTTPClient{response: tt.response, err: tt.err}
			g, err := NewGenerator(Opts{BaseEndpoint: "http://localhost:11434", ModelID: "llama3.2", HTTPClient: client})
			require.NoError(t, err)

			plan, err := g.Generate(context.Background(), testTargets(), nil)

			if tt.expectedErr != nil || tt.errContains != "" {
				require.Error(t, err)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedMeals, plan.MealNames())
		})
	}
}

func TestGenerator_RequestBody(t *testing.T) {
	client := &mockHTTPClient{response: createMockResponse(http.StatusOK, chatResponse(t, planContent, "stop"))}
	g, err := NewGenerator(Opts{BaseEndpoint: "http://localhost:11434", ModelID: "llama3.2", HTTPClient: client})
	require.NoError(t, err)

	correction := &dietagent.Rejection{
		Diffs: dietagent.Macros{Protein: 12},
		PerMealTargets: []dietagent.PerMealTarget{
			{MealIndex: 0, MealName: "Egg scramble", MealType: "breakfast", Targets: dietagent.Macros{Calories: 1000, Protein: 81}},
		},
	}

	_, err = g.Generate(context.Background(), testTargets(), correction)
	require.NoError(t, err)

	require.NotNil(t, client.request)
	assert.Equal(t, http.MethodPost, client.request.Method)
	assert.Equal(t, "application/json", client.request.Header.Get("Content-Type"))

	var body struct {
		Model    string        `json:"model"`
		Stream   bool          `json:"stream"`
		Messages []wireMessage `json:"messages"`
		Format   struct {
			Type     string   `json:"type"`
			Required []string `json:"required"`
		} `json:"format"`
		Options map[string]any `json:"options"`
	}
	require.NoError(t, json.Unmarshal(client.body, &body))

	assert.Equal(t, "llama3.2", body.Model)
	assert.False(t, body.Stream)
	assert.Equal(t, "object", body.Format.Type)
	assert.Equal(t, []string{"meals"}, body.Format.Required)
	assert.Equal(t, 16384.0, body.Options["num_ctx"])

	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, generator.SystemPrompt, body.Messages[0].Content)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Contains(t, body.Messages[1].Content, "CORRECTION REQUIRED")
	assert.Contains(t, body.Messages[1].Content, "1. Egg scramble (breakfast): 1000 kcal, 81.0 g protein")
}

func TestGenerator_AgainstHTTPServer(t *testing.T) {
	payload := chatResponse(t, planContent, "stop")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	g, err := NewGenerator(Opts{BaseEndpoint: srv.URL, ModelID: "llama3.2", HTTPClient: srv.Client()})
	require.NoError(t, err)

	plan, err := g.Generate(context.Background(), testTargets(), nil)
	require.NoError(t, err)
	assert.Equal(t, dietagent.Macros{Calories: 2000, Protein: 150, Carbs: 200, Fat: 60}, plan.Totals())
}
