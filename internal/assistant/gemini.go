package assistant

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Generator produces a JSON document matching schema for prompt
type Generator interface {
	Generate(ctx context.Context, apiKey, model, prompt string, schema *genai.Schema) (string, error)
}

// GeminiGenerator calls the Gemini API
type GeminiGenerator struct{}

// Generate sends one JSON-mode request. A client is built per call because the key can change at runtime.
func (GeminiGenerator) Generate(ctx context.Context, apiKey, model, prompt string, schema *genai.Schema) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

var recommendSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"recommendations": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":    stringSchema(""),
					"author":   stringSchema(""),
					"reason":   stringSchema("Lý do ngắn gọn tại sao nên đọc"),
					"category": stringSchema(""),
				},
			},
		},
	},
}

var extractSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"books": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":    stringSchema(""),
					"author":   stringSchema(""),
					"category": stringSchema(""),
					"quantity": {Type: genai.TypeNumber},
				},
			},
		},
	},
}
