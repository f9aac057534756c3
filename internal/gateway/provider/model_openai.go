package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptoprinter/internal/logger"
)

// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
type OpenAIChatClient struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// 429/5xx 的重试次数；0 表示默认 2 次，负数表示不重试
	MaxRetries   int
	ExtraHeaders map[string]string

	httpc *http.Client
	sleep func(context.Context, time.Duration) error
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *OpenAIChatClient) retries() int {
	switch {
	case c.MaxRetries < 0:
		return 0
	case c.MaxRetries == 0:
		return 2
	default:
		return c.MaxRetries
	}
}

func (c *OpenAIChatClient) client() *http.Client {
	if c.httpc != nil {
		return c.httpc
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c.httpc = &http.Client{Timeout: timeout}
	return c.httpc
}

// Complete sends one chat request, retrying 429/5xx with Retry-After or
// exponential backoff.
func (c *OpenAIChatClient) Complete(ctx context.Context, payload ChatPayload) (string, error) {
	temp := c.Temperature
	if payload.Temperature != nil {
		temp = *payload.Temperature
	}
	req := chatRequest{Model: c.Model, Temperature: temp, MaxTokens: payload.MaxTokens}
	if payload.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: payload.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: payload.User})
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	url := c.endpoint()
	logger.Debugf("[AI] 请求: POST %s model=%s headers=%v bytes=%d", url, c.Model, c.maskedHeaders(), len(body))

	maxRetries := c.retries()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, status, retryAfter, err := c.do(ctx, url, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(status) || attempt == maxRetries {
			break
		}
		wait := retryAfter
		if wait <= 0 {
			wait = (800 * time.Millisecond) << attempt
			if wait > 8*time.Second {
				wait = 8 * time.Second
			}
		}
		logger.Warnf("[AI] %s attempt %d failed: %v, retry in %s", c.Model, attempt+1, err, wait)
		if err := c.wait(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *OpenAIChatClient) do(ctx context.Context, url string, body []byte) (string, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		req.Header.Set(k, v)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, 0, err
	}
	if resp.StatusCode/100 != 2 {
		var eresp errorResponse
		_ = json.Unmarshal(raw, &eresp)
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return "", resp.StatusCode, retryAfter, fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
	}
	var r chatResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}
	if len(r.Choices) == 0 {
		return "", resp.StatusCode, 0, fmt.Errorf("empty choices")
	}
	return r.Choices[0].Message.Content, resp.StatusCode, 0, nil
}

func (c *OpenAIChatClient) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// maskedHeaders 仅展示密钥后 4 位。
func (c *OpenAIChatClient) maskedHeaders() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		h["Authorization"] = "Bearer ****" + tail(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = "****" + tail(v)
		}
		h[k] = v
	}
	return h
}

func tail(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return ""
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// OpenAIModelProvider 实现 ModelProvider。
type OpenAIModelProvider struct {
	id     string
	client *OpenAIChatClient
}

func NewOpenAIModelProvider(id string, client *OpenAIChatClient) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, client: client}
}

func (p *OpenAIModelProvider) ID() string    { return p.id }
func (p *OpenAIModelProvider) Model() string { return p.client.Model }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	return p.client.Complete(ctx, payload)
}
