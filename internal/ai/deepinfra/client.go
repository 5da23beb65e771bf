package deepinfra

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
)

const (
	provider = "deepinfra"

	// InferenceURL is the base of DeepInfra's hosted model endpoints; the model id is appended.
	InferenceURL   = "https://api.deepinfra.com/v1/inference/"
	defaultModel   = "openai/whisper-large-v3"
	defaultTimeout = 60 * time.Second
	audioField     = "audio"
)

// Client transcribes audio with a Whisper model hosted on DeepInfra.
type Client struct {
	HTTPClient *http.Client

	url    string
	model  string
	apiKey string
	logger *zap.Logger
}

type inferenceResponse struct {
	Text string `json:"text"`
}

// New creates a transcription client. An empty url is derived from the model, an
// explicit url is used as is.
func New(apiKey, url, model string, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("deepinfra api key is empty")
	}

	if model = strings.Trim(strings.TrimSpace(model), "/"); model == "" {
		model = defaultModel
	}

	if url = strings.TrimSpace(url); url == "" {
		url = ModelURL(model)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		url:        url,
		model:      model,
		apiKey:     apiKey,
		logger:     logger,
	}, nil
}

// ModelURL returns the inference endpoint of a hosted model.
func ModelURL(model string) string {
	return InferenceURL + strings.Trim(model, "/")
}

// Transcribe implements ai.Transcriber.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio must not be empty")
	}

	req, err := c.newAudioRequest(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()), zap.Int("audio_bytes", len(audio)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", ai.Classify(provider, "transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ai.Classify(provider, "transcribe", fmt.Errorf("bad status: %s", resp.Status))
	}

	text, err := parseResponse(resp)
	if err != nil {
		return "", ai.Classify(provider, "transcribe", err)
	}

	if text == "" {
		return "", ai.Classify(provider, "transcribe", errors.New("empty transcription"))
	}

	return text, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) newAudioRequest(ctx context.Context, audio []byte, mimeType string) (*http.Request, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	field, err := w.CreateFormFile(audioField, "answer"+extensionFor(mimeType))
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(field, bytes.NewReader(audio)); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &b)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept-Encoding", "gzip")

	return req, nil
}

func parseResponse(resp *http.Response) (string, error) {
	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", err
		}
		defer gz.Close()
		body = gz
	}

	var response inferenceResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}

	return strings.TrimSpace(response.Text), nil
}

func extensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ".webm"
	}

	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".webm"
	}
}
