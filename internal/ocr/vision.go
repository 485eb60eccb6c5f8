package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// VisionEngine implements Engine on top of a multimodal chat model.
type VisionEngine struct {
	client *openai.Client
	model  string
}

// NewVisionEngine creates an engine using the given API key. Model defaults
// to GPT-4o mini, which is accurate enough for digit crops and cheap enough
// to run on every candidate point.
func NewVisionEngine(apiKey, model string) (*VisionEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision OCR API key not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &VisionEngine{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Recognize sends the image to the vision model with a mode-specific prompt
// and returns the recognized text with surrounding noise stripped.
func (v *VisionEngine) Recognize(ctx context.Context, image []byte, mode Mode) (string, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: promptFor(mode),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:image/png;base64,%s", imageBase64),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: 100,
	})
	if err != nil {
		return "", fmt.Errorf("vision OCR call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision OCR model")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if strings.EqualFold(content, "NONE") {
		return "", nil
	}
	return content, nil
}

func promptFor(mode Mode) string {
	switch mode {
	case ModeSingleChar:
		return "This image contains at most one character. Reply with exactly that character and nothing else. If the image contains no readable character, reply with NONE."
	case ModeSingleLine:
		return "Read the single line of text in this image. Reply with only that text. If there is no readable text, reply with NONE."
	case ModeDigits:
		return "Read only the digits visible in this image. Reply with the digits and nothing else. If there are no digits, reply with NONE."
	default:
		return "Transcribe all readable text in this image. Reply with only the text. If there is no readable text, reply with NONE."
	}
}
