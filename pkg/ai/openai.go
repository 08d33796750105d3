package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ottoseguridad_backend/pkg/config"
)

var ErrNotConfigured = errors.New("AI API key is not configured")

// Backend is the remote model: chat completions and speech synthesis.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Unconfigured fails every call with ErrNotConfigured. It stands in when no
// API key is set.
var Unconfigured Backend = unconfigured{}

type unconfigured struct{}

func (unconfigured) Complete(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (unconfigured) Speak(context.Context, string) ([]byte, error) {
	return nil, ErrNotConfigured
}

// OpenAI implements Backend with the official SDK.
type OpenAI struct {
	client   openai.Client
	model    string
	ttsModel string
	voice    string
}

func NewOpenAI(cfg config.AIConfig, opts ...option.RequestOption) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAI{
		client:   openai.NewClient(reqOpts...),
		model:    cfg.Model,
		ttsModel: cfg.TTSModel,
		voice:    cfg.TTSVoice,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func (o *OpenAI) Speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.ttsModel),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat("mp3"),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio, nil
}
