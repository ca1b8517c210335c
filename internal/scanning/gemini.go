package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Generator interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini generator bound to the extraction prompt
func NewGemini(apiKey string, modelName string, prompt *ExtractionPrompt, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-lite"
	}
	if prompt == nil {
		prompt = DefaultPrompt()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	configureModel(model, prompt)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// configureModel applies the fixed generation settings to a model
func configureModel(model *genai.GenerativeModel, prompt *ExtractionPrompt) {
	model.SetTemperature(prompt.Temperature)
	model.SetTopK(prompt.TopK)
	model.SetTopP(prompt.TopP)
	model.SetMaxOutputTokens(prompt.MaxOutputTokens)
	model.ResponseMIMEType = prompt.ResponseMIMEType
	model.ResponseSchema = prompt.Schema
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.SystemInstruction))
}

// Generate sends the receipt text in a fresh chat session and returns the reply text
func (g *Gemini) Generate(ctx context.Context, receiptText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	chat := g.model.StartChat()
	resp, err := chat.SendMessage(ctx, genai.Text(receiptText))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
