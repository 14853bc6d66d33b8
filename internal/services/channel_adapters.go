package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Channel types with a registered delivery adapter.
const (
	ChannelEmail     = "EMAIL"
	ChannelSlack     = "SLACK"
	ChannelWebhook   = "WEBHOOK"
	ChannelTeams     = "TEAMS"
	ChannelPagerDuty = "PAGERDUTY"
)

// ChannelAdapter delivers one rendered notification to one channel. Adapters
// succeed or fail independently of each other.
type ChannelAdapter interface {
	Send(ctx context.Context, config map[string]interface{}, title, message string) error
}

// AdapterSet maps channel types to their adapters. All transports except the
// generic webhook are simulated senders behind the same interface.
type AdapterSet struct {
	adapters map[string]ChannelAdapter
	logger   *logrus.Logger
}

func NewAdapterSet(logger *logrus.Logger, webhookTimeout time.Duration) *AdapterSet {
	if logger == nil {
		logger = logrus.New()
	}
	if webhookTimeout <= 0 {
		webhookTimeout = 10 * time.Second
	}
	webhookClient := &http.Client{
		Timeout:   webhookTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	set := &AdapterSet{adapters: make(map[string]ChannelAdapter), logger: logger}
	set.adapters[ChannelEmail] = emailAdapter{logger: logger}
	set.adapters[ChannelSlack] = slackAdapter{logger: logger}
	set.adapters[ChannelWebhook] = webhookAdapter{client: webhookClient}
	set.adapters[ChannelTeams] = teamsAdapter{logger: logger}
	set.adapters[ChannelPagerDuty] = pagerDutyAdapter{logger: logger}
	return set
}

// Register replaces the adapter for channelType; used to plug real transports
// in place of the simulated ones.
func (a *AdapterSet) Register(channelType string, adapter ChannelAdapter) {
	a.adapters[channelType] = adapter
}

// Known reports whether channelType has an adapter.
func (a *AdapterSet) Known(channelType string) bool {
	_, ok := a.adapters[channelType]
	return ok
}

// Send parses the channel's JSON config and dispatches to its adapter.
func (a *AdapterSet) Send(ctx context.Context, channelType, configJSON, title, message string) error {
	adapter, ok := a.adapters[channelType]
	if !ok {
		return fmt.Errorf("unsupported channel type: %s", channelType)
	}
	config := map[string]interface{}{}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return fmt.Errorf("invalid channel config: %w", err)
		}
	}
	return adapter.Send(ctx, config, title, message)
}

type emailAdapter struct {
	logger *logrus.Logger
}

func (a emailAdapter) Send(ctx context.Context, config map[string]interface{}, title, message string) error {
	to, _ := config["email"].(string)
	if to == "" {
		return fmt.Errorf("email config missing recipient")
	}
	a.logger.Infof("email to %s: %s", to, title)
	return nil
}

type slackAdapter struct {
	logger *logrus.Logger
}

func (a slackAdapter) Send(ctx context.Context, config map[string]interface{}, title, message string) error {
	webhook, _ := config["webhook_url"].(string)
	if webhook == "" {
		return fmt.Errorf("slack config missing webhook_url")
	}
	channel, _ := config["channel"].(string)
	a.logger.Infof("slack message to %s: *%s*", channel, title)
	return nil
}

// webhookAdapter POSTs the rendered notification to the configured URL.
type webhookAdapter struct {
	client *http.Client
}

func (a webhookAdapter) Send(ctx context.Context, config map[string]interface{}, title, message string) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook config missing url")
	}
	payload, err := json.Marshal(map[string]interface{}{
		"title":     title,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type teamsAdapter struct {
	logger *logrus.Logger
}

func (a teamsAdapter) Send(ctx context.Context, config map[string]interface{}, title, message string) error {
	webhook, _ := config["webhook_url"].(string)
	if webhook == "" {
		return fmt.Errorf("teams config missing webhook_url")
	}
	a.logger.Infof("teams message: %s", title)
	return nil
}

type pagerDutyAdapter struct {
	logger *logrus.Logger
}

func (a pagerDutyAdapter) Send(ctx context.Context, config map[string]interface{}, title, message string) error {
	key, _ := config["integration_key"].(string)
	if key == "" {
		return fmt.Errorf("pagerduty config missing integration_key")
	}
	a.logger.Infof("pagerduty alert: %s", title)
	return nil
}
