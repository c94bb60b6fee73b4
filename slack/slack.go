package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dietagent"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	webhookURL string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

// PostPlan announces an accepted plan on channel.
func (c *Client) PostPlan(ctx context.Context, channel, runID string, plan dietagent.CandidatePlan) error {
	return c.PostMessage(ctx, channel, FormatPlan(runID, plan))
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// FormatPlan renders a plan as Slack mrkdwn, one line per meal plus totals.
func FormatPlan(runID string, plan dietagent.CandidatePlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, ":white_check_mark: *Meal plan ready* (run `%s`)\n", runID)
	for _, m := range plan.Meals {
		fmt.Fprintf(&b, "• *%s* _%s_: %d kcal, P %.1fg, C %.1fg, F %.1fg\n",
			m.Name, m.Type, m.Calories, m.Protein, m.Carbs, m.Fat)
	}

	t := plan.Totals()
	fmt.Fprintf(&b, "*Total*: %.0f kcal, P %.1fg, C %.1fg, F %.1fg", t.Calories, t.Protein, t.Carbs, t.Fat)

	return b.String()
}
