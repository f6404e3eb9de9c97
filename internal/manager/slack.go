package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/core/message"
	log "github.com/sirupsen/logrus"
)

// slackClient posts best-effort Slack webhook notifications. It never
// returns an error to its caller: network failures are logged and
// swallowed, per the error-handling design's "Slack notification
// errors: swallowed; never affect dispatch".
type slackClient struct {
	httpClient *http.Client
}

func newSlackClient() *slackClient {
	return &slackClient{httpClient: &http.Client{Timeout: 5 * time.Second}}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Notify sends one POST per configured webhook whose worker list
// includes msg.Source.
func (s *slackClient) Notify(cfg map[string]config.SlackNotificationConfig, msg message.Message) {
	for envVar, notif := range cfg {
		if !contains(notif.Workers, msg.Source) {
			continue
		}

		url, ok := os.LookupEnv(envVar)
		if !ok || url == "" {
			log.WithFields(log.Fields{"env_var": envVar}).Warn("slack webhook env var not set, skipping notification")
			continue
		}

		text := fmt.Sprintf("%s: %s", msg.Source, msg.Type)
		if notif.LogURL != "" {
			text += fmt.Sprintf("\nLog: %s", notif.LogURL)
		}
		if notif.ChecklistURL != "" {
			text += fmt.Sprintf("\nChecklist: %s", notif.ChecklistURL)
		}

		body, err := json.Marshal(slackPayload{Text: text})
		if err != nil {
			continue
		}

		resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("slack notification failed")
			continue
		}
		_ = resp.Body.Close()
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
