package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"speedtest/config"
	"speedtest/internal/eventbus"
)

const webhookTimeout = 30 * time.Second

// WebhookClient webhook客户端
type WebhookClient struct {
	Client *http.Client
}

// NewWebhookClient 创建webhook客户端
func NewWebhookClient() *WebhookClient {
	return &WebhookClient{
		Client: &http.Client{
			Timeout: webhookTimeout,
		},
	}
}

// ExecuteWebhook 执行webhook请求
func (wc *WebhookClient) ExecuteWebhook(ctx context.Context, webhook config.WebhookConfig, data map[string]interface{}) error {
	if webhook.URL == "" {
		return errors.New("webhook URL is empty")
	}

	method := strings.ToUpper(webhook.Method)
	if method == "" {
		method = http.MethodPost
	}

	// 请求头每行一个
	header := make(http.Header)
	for _, line := range strings.Split(webhook.Header, "\n") {
		key, value, ok := strings.Cut(line, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			header.Set(key, value)
		}
	}

	targetURL := webhook.URL
	var body io.Reader
	if method == http.MethodGet {
		// GET 请求把数据放到查询参数中
		if len(data) > 0 {
			params := url.Values{}
			for key, value := range data {
				params.Add(key, fmt.Sprintf("%v", value))
			}
			separator := "?"
			if strings.Contains(targetURL, "?") {
				separator = "&"
			}
			targetURL += separator + params.Encode()
		}
	} else if webhook.Body != "" {
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
		format := rawValue
		if strings.Contains(strings.ToLower(header.Get("Content-Type")), "json") {
			format = jsonStringValue
		}
		body = strings.NewReader(renderTemplate(webhook.Body, data, format))
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}

	resp, err := wc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %s", resp.Status)
	}
	return nil
}

// ExecuteWebhooks 批量执行webhooks，返回所有失败
func (wc *WebhookClient) ExecuteWebhooks(ctx context.Context, webhooks []config.WebhookConfig, data map[string]interface{}) []error {
	var errs []error
	for _, webhook := range webhooks {
		if err := wc.ExecuteWebhook(ctx, webhook, data); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s failed: %w", webhook.Name, err))
		}
	}
	return errs
}

func rawValue(value interface{}) string {
	return fmt.Sprintf("%v", value)
}

// jsonStringValue 转义为JSON字符串内容，不含外层引号
func jsonStringValue(value interface{}) string {
	encoded, err := json.Marshal(fmt.Sprintf("%v", value))
	if err != nil {
		return ""
	}
	return string(encoded[1 : len(encoded)-1])
}

// renderTemplate 简单的 {{key}} 占位符替换，值经 format 处理后写入
func renderTemplate(template string, data map[string]interface{}, format func(interface{}) string) string {
	if template == "" || len(data) == 0 {
		return template
	}
	var buf bytes.Buffer
	buf.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			buf.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			buf.WriteString(rest)
			break
		}
		end += start
		key := strings.TrimSpace(rest[start+2 : end])
		buf.WriteString(rest[:start])
		if value, ok := data[key]; ok {
			buf.WriteString(format(value))
		} else {
			buf.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	return buf.String()
}

// WebhookEventHandler 把结果事件推送到配置的webhook
type WebhookEventHandler struct {
	client   *WebhookClient
	webhooks []config.WebhookConfig
}

// NewWebhookEventHandler 创建webhook事件处理器
func NewWebhookEventHandler(client *WebhookClient, webhooks []config.WebhookConfig) *WebhookEventHandler {
	return &WebhookEventHandler{client: client, webhooks: webhooks}
}

// HandleEvent 推送订阅了该事件的webhook
func (h *WebhookEventHandler) HandleEvent(event eventbus.Event) error {
	var targets []config.WebhookConfig
	for _, webhook := range h.webhooks {
		if subscribes(webhook, event.GetType()) {
			targets = append(targets, webhook)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	data := make(map[string]interface{}, len(event.GetData())+1)
	for key, value := range event.GetData() {
		data[key] = value
	}
	data["event"] = event.GetType()

	errs := h.client.ExecuteWebhooks(context.Background(), targets, data)
	for _, err := range errs {
		log.WithError(err).WithField("event", event.GetType()).Warn("webhook notification failed")
	}
	return errors.Join(errs...)
}

func subscribes(webhook config.WebhookConfig, eventType string) bool {
	if len(webhook.Events) == 0 {
		return eventType == eventbus.EventResultCreated
	}
	for _, e := range webhook.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
