package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackNotifier posts job failures and cost alerts to a Slack webhook.
// With an empty webhook URL it only logs.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewSlackNotifier(webhookURL string, log *zap.SugaredLogger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

func (n *SlackNotifier) JobFailed(ctx context.Context, q *models.Questionnaire, reason string, err error) {
	if reason == "" {
		reason = "unknown"
	}
	message := fmt.Sprintf(
		":rotating_light: *Brand Visibility Report Failed*\n"+
			"*Time:* %s\n"+
			"*Questionnaire:* %s\n"+
			"*Brand:* %s\n"+
			"*Reason:* %s\n"+
			"*Error:* ```%v```",
		n.now().UTC().Format(time.RFC3339),
		q.ID,
		brandName(q),
		reason,
		err,
	)
	if postErr := n.post(ctx, message); postErr != nil {
		n.log.Warnf("[Slack] Failed to report failure of %s: %v", q.ID, postErr)
	}
}

func (n *SlackNotifier) CostAlert(ctx context.Context, q *models.Questionnaire, report *models.FinalReport) {
	message := fmt.Sprintf(
		":moneybag: *Brand Visibility Cost Alert*\n"+
			"*Time:* %s\n"+
			"*Questionnaire:* %s\n"+
			"*Brand:* %s\n"+
			"*Tokens:* %d\n"+
			"*Cost:* €%.4f",
		n.now().UTC().Format(time.RFC3339),
		q.ID,
		brandName(q),
		report.TotalTokens,
		report.CostEUR,
	)
	if err := n.post(ctx, message); err != nil {
		n.log.Warnf("[Slack] Failed to report cost alert of %s: %v", q.ID, err)
	}
}

func (n *SlackNotifier) post(ctx context.Context, text string) error {
	if n.webhookURL == "" {
		n.log.Debugf("[Slack] SLACK_WEBHOOK_URL not set, dropping alert: %s", text)
		return nil
	}

	body, err := json.Marshal(SlackPayload{Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func brandName(q *models.Questionnaire) string {
	if q.BrandName == "" {
		return "unknown"
	}
	return q.BrandName
}
