package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/config"
	"quizdesk-service/internal/domain"
)

// Client writes and translates questions through an OpenAI-compatible
// chat completions endpoint. Calls are throttled client-side.
type Client struct {
	cfg     config.AI
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg config.AI, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.TTLDuration(cfg.Timeout, 60*time.Second)}
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// wireQuestion is the JSON shape exchanged with the model.
type wireQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

type wireQuestions struct {
	Questions []wireQuestion `json:"questions"`
}

const generatePrompt = `You write multiple-choice exam questions.
Reply with a JSON object of the form {"questions":[{"question":"...","options":["...","..."],"correctAnswer":"..."}]}.
Every question has 4 distinct options and correctAnswer is exactly one of them.`

func (c *Client) GenerateQuestions(ctx context.Context, req app.GenerateRequest) ([]domain.Question, error) {
	user := fmt.Sprintf("Write %d %s questions about: %s", req.Count, strings.ToLower(string(req.Difficulty)), req.Topic)
	content, err := c.chat(ctx, generatePrompt, user, true)
	if err != nil {
		return nil, err
	}
	var out wireQuestions
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}
	questions := make([]domain.Question, 0, len(out.Questions))
	for _, q := range out.Questions {
		questions = append(questions, domain.Question{
			Text:          strings.TrimSpace(q.Question),
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	return questions, nil
}

const translateQuestionsPrompt = `You translate exam questions.
Translate every "question" and every entry of "options" into the requested language.
Keep the number and order of questions and options unchanged.
Reply with a JSON object of the same form: {"questions":[{"question":"...","options":["..."]}]}.`

func (c *Client) TranslateQuestions(ctx context.Context, questions []domain.Question, language string) ([]domain.Question, error) {
	in := wireQuestions{Questions: make([]wireQuestion, 0, len(questions))}
	for _, q := range questions {
		in.Questions = append(in.Questions, wireQuestion{Question: q.Text, Options: q.Options})
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	content, err := c.chat(ctx, translateQuestionsPrompt, "Language: "+language+"\n"+string(payload), true)
	if err != nil {
		return nil, err
	}
	var out wireQuestions
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}
	translated := make([]domain.Question, 0, len(out.Questions))
	for _, q := range out.Questions {
		translated = append(translated, domain.Question{Text: strings.TrimSpace(q.Question), Options: q.Options})
	}
	return translated, nil
}

func (c *Client) TranslateText(ctx context.Context, text, language string) (string, error) {
	system := "Translate the user's text into " + language + ". Reply with the translation only."
	return c.chat(ctx, system, text, false)
}

func (c *Client) chat(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ai rate limit: %w", err)
	}
	body := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read ai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("ai api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// decodeJSON tolerates models that wrap their JSON in a markdown fence.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}
