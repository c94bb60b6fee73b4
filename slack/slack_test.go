package slack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"dietagent"
	"dietagent/slack"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	resp   *http.Response
	err    error
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return m.resp, m.err
}

func testPlan() dietagent.CandidatePlan {
	return dietagent.CandidatePlan{Meals: []dietagent.CandidateMeal{
		{Name: "Protein oats", Type: "breakfast", Calories: 1000, Protein: 75, Carbs: 100, Fat: 30},
		{Name: "Chicken rice bowl", Type: "dinner", Calories: 1000, Protein: 75, Carbs: 100, Fat: 30},
	}}
}

func TestNewClient(t *testing.T) {
	webhook := "http://slack.com/webhook"
	client := slack.NewClient(webhook, &mockDoer{})
	must.NotNil(t, client, "expected non-nil client")
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
			wantErr: nil,
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: fmt.Errorf("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := slack.NewClient("http://example.com/webhook", &mockDoer{doFunc: tt.doFunc})
			err := client.PostMessage(context.Background(), "#general", "Hello, world!")
			should.Equal(t, tt.wantErr, err)
		})
	}
}

func TestPostPlan(t *testing.T) {
	var payload map[string]string
	client := slack.NewClient("http://example.com/webhook", &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		must.Equal(t, "application/json", req.Header.Get("Content-Type"))
		must.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
	}})

	err := client.PostPlan(context.Background(), "#meal-plans", "run-1", testPlan())
	must.NoError(t, err)

	should.Equal(t, "#meal-plans", payload["channel"])
	should.Equal(t, slack.FormatPlan("run-1", testPlan()), payload["text"])
}

func TestFormatPlan(t *testing.T) {
	got := slack.FormatPlan("run-1", testPlan())

	should.Equal(t, ":white_check_mark: *Meal plan ready* (run `run-1`)\n"+
		"• *Protein oats* _breakfast_: 1000 kcal, P 75.0g, C 100.0g, F 30.0g\n"+
		"• *Chicken rice bowl* _dinner_: 1000 kcal, P 75.0g, C 100.0g, F 30.0g\n"+
		"*Total*: 2000 kcal, P 150.0g, C 200.0g, F 60.0g", got)
}
