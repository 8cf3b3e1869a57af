package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	isEventSystemPrompt = "You classify social media posts from student organizations. " +
		"Answer with exactly YES if the post announces a specific upcoming event " +
		"with a date or time, and exactly NO otherwise."

	parseEventSystemPrompt = "You extract structured event data from social media posts. " +
		"Respond with a single JSON object with the keys: title, description, " +
		"start_time (RFC 3339), end_time (RFC 3339 or null), location (string or null), " +
		"registration_url (string or null). Use null for anything the post does not state. " +
		"Do not invent values. Respond with JSON only."
)

// Client calls an OpenAI-compatible chat completions endpoint to classify and
// parse free-form event announcements. The zero configuration is valid: a
// client without a base URL reports itself disabled and every call fails
// cleanly, so callers can wire it unconditionally.
type Client struct {
	baseURL string
	apiKey  string
	model   string

	initOnce sync.Once
	endpoint string
	http     *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimSpace(baseURL),
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
	}
}

// Enabled reports whether the client has an endpoint to talk to.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// IsEventPost classifies whether the text announces a concrete event.
func (c *Client) IsEventPost(ctx context.Context, text string) (bool, error) {
	answer, err := c.chat(ctx, isEventSystemPrompt, text)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(answer)) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	default:
		return false, fmt.Errorf("classifier returned %q, expected YES or NO", answer)
	}
}

// ParseEvent extracts the structured event payload from the text. The result
// is raw JSON for the caller to validate against the payload schema.
func (c *Client) ParseEvent(ctx context.Context, text string) (json.RawMessage, error) {
	answer, err := c.chat(ctx, parseEventSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	payload := ExtractJSON(answer)
	if payload == "" {
		return nil, fmt.Errorf("model response contained no JSON object")
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("model response is not valid JSON")
	}
	return json.RawMessage(payload), nil
}

// ExtractJSON pulls a JSON object out of a model response, tolerating
// markdown code fences and surrounding prose. Returns "" when no object
// can be found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start >= 0 {
		rest := response[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		response = strings.TrimSpace(rest)
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return ""
	}
	return response[start : end+1]
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("llm client is not configured, set LLM_BASE_URL")
	}
	c.initOnce.Do(func() {
		c.endpoint = chatCompletionsURL(c.baseURL)
		c.http = &http.Client{Timeout: 120 * time.Second}
	})

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload chatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return "", fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return "", fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat response was empty")
	}
	return content, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func chatCompletionsURL(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return endpoint
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}
	return parsed.String()
}
