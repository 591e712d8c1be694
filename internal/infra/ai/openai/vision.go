package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
	"github.com/bryanwahyu/scribe-notes/internal/infra/ai/prompt"
	"github.com/bryanwahyu/scribe-notes/internal/infra/imaging"
)

// Vision is an OCR engine that asks a vision-capable chat model to transcribe the image.
type Vision struct {
	client *Client
}

func NewVision(client *Client) *Vision {
	return &Vision{client: client}
}

func (v *Vision) Open(ctx context.Context) (domain.RecognizerWorker, error) {
	return v, nil
}

func (v *Vision) Recognize(ctx context.Context, image []byte, mediaType string) (string, error) {
	req := v.client.newRequest([]openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.GetTranscribePrompt()},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    imaging.EncodeDataURL(mediaType, image),
						Detail: openai.ImageURLDetailHigh,
					},
				},
			},
		},
	})
	return v.client.complete(ctx, req)
}

func (v *Vision) Close() error { return nil }
