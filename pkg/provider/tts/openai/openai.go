// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as raw PCM (24 kHz, 16-bit, mono) and streamed to the
// caller as the response body arrives.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
)

const (
	// DefaultModel is the default speech model.
	DefaultModel = string(oai.SpeechModelTTS1)

	// DefaultVoice is used when a VoiceProfile has no ID.
	DefaultVoice = "alloy"

	// sampleRate is fixed by the API's "pcm" response format.
	sampleRate = 24000

	chunkSize = 4800 // 100ms of 24 kHz mono PCM

	minSpeed = 0.25
	maxSpeed = 4.0
)

// voices is the catalogue of built-in OpenAI voices.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithMaxRetries sets how often the client retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs an OpenAI speech provider. If model is empty, DefaultModel
// is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: 1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: sampleRate, Channels: 1}
}

// ListVoices implements tts.Provider. The API has no voice listing endpoint,
// so the built-in catalogue is returned.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}

// SynthesizeStream implements tts.Provider. The speech endpoint takes whole
// inputs, so fragments are collected until text closes and sent as one
// request.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	id := voice.ID
	if id == "" {
		id = DefaultVoice
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)

		var sb strings.Builder
	collect:
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					break collect
				}
				sb.WriteString(fragment)
				sb.WriteByte(' ')
			case <-ctx.Done():
				return
			}
		}
		input := strings.TrimSpace(sb.String())
		if input == "" {
			return
		}

		resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
			Input:          input,
			Model:          oai.SpeechModel(p.model),
			Voice:          oai.AudioSpeechNewParamsVoice(id),
			ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
			Speed:          oai.Float(voice.Speed(minSpeed, maxSpeed)),
		})
		if err != nil {
			slog.Warn("openai tts: synthesis failed", "voice", id, "error", err)
			return
		}
		defer resp.Body.Close()
		streamBody(ctx, resp.Body, out)
	}()
	return out, nil
}

// streamBody forwards r in sample-aligned chunks.
func streamBody(ctx context.Context, r io.Reader, out chan<- []byte) {
	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			n -= n % 2
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}
