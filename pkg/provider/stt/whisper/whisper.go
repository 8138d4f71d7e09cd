// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server binary over its REST API
// (POST /inference). NativeProvider runs the model in-process through the
// whisper.cpp Go bindings. Both are batch engines: audio is segmented into
// utterances by silence detection and each utterance is transcribed whole,
// yielding a partial and a final with the same text.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilence(500*time.Millisecond),
//	)
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
	"github.com/MrWong99/speakdrill/pkg/provider/stt/batch"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option shared by Provider and NativeProvider.
type Option func(*settings)

// settings holds the options common to both whisper providers.
type settings struct {
	model      string
	language   string
	sampleRate int
	segmenter  audio.SegmenterConfig
	httpClient *http.Client
}

func newSettings(opts []Option) settings {
	s := settings{
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// streamConfig fills cfg from the provider defaults.
func (s settings) streamConfig(cfg stt.StreamConfig) stt.StreamConfig {
	if cfg.Language == "" {
		cfg.Language = s.language
	}
	cfg.Language = baseLanguage(cfg.Language)
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = s.sampleRate
	}
	return cfg
}

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses the model it was started with.
// NativeProvider ignores it; its model is the file passed to NewNative.
func WithModel(model string) Option {
	return func(p *settings) {
		p.model = model
	}
}

// WithLanguage sets the language code used when a stream does not specify
// one. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *settings) {
		p.language = lang
	}
}

// WithSampleRate sets the default sample rate of streamed PCM. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *settings) {
		p.sampleRate = rate
	}
}

// WithSilence sets the trailing silence that ends an utterance.
func WithSilence(d time.Duration) Option {
	return func(p *settings) {
		p.segmenter.Silence = d
	}
}

// WithMaxUtterance sets the longest utterance buffered before a forced flush.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *settings) {
		p.segmenter.MaxUtterance = d
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests. Only
// Provider uses it.
func WithHTTPClient(c *http.Client) Option {
	return func(p *settings) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL string
	settings
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	return &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		settings:  newSettings(opts),
	}, nil
}

// StartStream opens a new transcription session. No network connection is
// made until the first utterance completes.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return batch.Start(ctx, batch.Config{
		Name:      "whisper",
		Stream:    p.streamConfig(cfg),
		Segmenter: p.segmenter,
	}, batch.TranscriberFunc(p.infer)), nil
}

// infer POSTs one utterance as a WAV upload to /inference.
func (p *Provider) infer(ctx context.Context, pcm []byte, f audio.Format, language string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, f)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// baseLanguage reduces a BCP-47 tag to the bare language code whisper.cpp
// expects ("en-US" -> "en").
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
