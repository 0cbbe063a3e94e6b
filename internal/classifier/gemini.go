package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/dailyscore/pkg/models"
)

const (
	GeminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	GeminiDefaultModel   = "gemini-2.5-flash"
	geminiHTTPTimeout    = 30 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("classifier: gemini api key not configured")

const promptTemplate = `Categorize the following task into one of these categories: work, health, personal, learning.

Task: %s
Description: %s

Respond with ONLY a valid JSON object in this exact format: {"category": "category_name", "confidence": 0.95}

Guidelines:
- work: Professional tasks, job-related activities, business meetings, deadlines
- health: Exercise, diet, medical appointments, wellness activities
- personal: Family, relationships, hobbies, entertainment, personal errands
- learning: Studying, reading, courses, skill development, educational activities

Do not include any markdown formatting, code blocks, or additional text. Only return the JSON object.`

// GeminiConfig configures the Gemini REST client.
type GeminiConfig struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

// Gemini classifies tasks with the generateContent endpoint.
type Gemini struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// modelAnswer is the JSON object the prompt asks for. Confidence is left
// untyped so a string or missing value can be told apart from a number.
type modelAnswer struct {
	Confidence interface{} `json:"confidence"`
	Category   string      `json:"category"`
}

// NewGemini creates a Gemini client. It fails when cfg has no API key.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	g := &Gemini{
		client:  cfg.HTTPClient,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: geminiHTTPTimeout}
	}
	if g.model == "" {
		g.model = GeminiDefaultModel
	}
	if g.baseURL == "" {
		g.baseURL = GeminiDefaultBaseURL
	}
	return g, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Classify asks the model for a category.
func (g *Gemini) Classify(ctx context.Context, title, description string) (Result, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf(promptTemplate, title, description)}},
		}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("gemini API error (model=%s, status=%d): %s",
			g.model, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Result{}, fmt.Errorf("decode gemini response: %w", err)
	}

	var text strings.Builder
	for _, c := range gr.Candidates {
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return Result{}, errors.New("gemini returned no candidates")
	}

	return ParseAnswer(text.String())
}

// ParseAnswer decodes the model's JSON answer after stripping markdown code
// fences. An invalid category is an error; an invalid confidence becomes
// DefaultConfidence.
func ParseAnswer(text string) (Result, error) {
	var ans modelAnswer
	if err := json.Unmarshal([]byte(stripFences(text)), &ans); err != nil {
		return Result{}, fmt.Errorf("parse model answer: %w", err)
	}

	cat := models.Category(ans.Category)
	if !cat.IsValid() {
		return Result{}, fmt.Errorf("%w: model returned %q", models.ErrInvalidCategory, ans.Category)
	}

	confidence := DefaultConfidence
	if f, ok := ans.Confidence.(float64); ok && f >= 0 && f <= 1 {
		confidence = f
	}

	return Result{Category: cat, Confidence: confidence, Source: SourceModel}, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
