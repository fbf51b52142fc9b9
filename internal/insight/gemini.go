package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var ErrNoCandidate = errors.New("generator returned no text")

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{APIKey: apiKey, Model: model, BaseURL: DefaultGeminiBaseURL, Timeout: 15 * time.Second}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.BaseURL, "/"), g.Model)
	agent := fiber.Post(url)
	agent.Set("x-goog-api-key", g.APIKey)
	agent.JSON(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})

	timeout := g.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("generateContent request: %w", errors.Join(errs...))
	}
	return parseGeminiResponse(code, body)
}

func parseGeminiResponse(code int, body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("generateContent status %d: undecodable body: %w", code, err)
	}
	if code != fiber.StatusOK {
		msg := "unexpected status"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", fmt.Errorf("generateContent status %d: %s", code, msg)
	}

	for _, cand := range resp.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text, nil
		}
	}
	return "", ErrNoCandidate
}
