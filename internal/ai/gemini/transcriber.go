package gemini

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/hh-interviewer/internal/ai"
)

const (
	defaultAudioMIME     = "audio/webm"
	transcriptionRequest = "Transcribe this interview answer verbatim. Return only the spoken words, without timestamps, speaker labels or commentary."
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Transcriber converts recorded answers to text with a multimodal Gemini model.
type Transcriber struct {
	models contentModels
	model  string
	logger *zap.Logger
}

// NewTranscriber creates a Transcriber for the Gemini API backend.
func NewTranscriber(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Transcriber, error) {
	client, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Transcriber{models: client.Models, model: model, logger: logger}, nil
}

// Transcribe implements ai.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if t == nil || t.models == nil {
		return "", errors.New("gemini transcriber is not initialized")
	}

	if len(audio) == 0 {
		return "", errors.New("audio must not be empty")
	}

	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = defaultAudioMIME
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: transcriptionRequest},
			{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
		},
	}}

	t.logger.Debug("gemini transcription request",
		zap.Int("audio_bytes", len(audio)),
		zap.String("mime_type", mimeType),
	)

	resp, err := t.models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", ai.Classify(provider, "transcribe", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", ai.Classify(provider, "transcribe", errors.New("empty transcription"))
	}

	return text, nil
}

// Model returns the configured model name.
func (t *Transcriber) Model() string {
	if t == nil {
		return ""
	}
	return t.model
}
