// NativeProvider runs whisper.cpp in-process through the CGO bindings. The
// whisper.cpp static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/speakdrill/pkg/audio"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
	"github.com/MrWong99/speakdrill/pkg/provider/stt/batch"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// nativeSampleRate is the only input rate whisper.cpp models accept.
const nativeSampleRate = 16000

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider with an in-process whisper model.
// The model is loaded once and shared by all sessions; every utterance gets
// its own whisper context.
type NativeProvider struct {
	model whisperlib.Model
	settings
}

// NewNative loads the whisper model at modelPath. The caller must call Close
// when the provider is no longer needed.
func NewNative(modelPath string, opts ...Option) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model, settings: newSettings(opts)}, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return batch.Start(ctx, batch.Config{
		Name:      "whisper-native",
		Stream:    p.streamConfig(cfg),
		Segmenter: p.segmenter,
	}, batch.TranscriberFunc(p.infer)), nil
}

// infer down-mixes pcm to mono float32 and runs whisper on a fresh context.
func (p *NativeProvider) infer(ctx context.Context, pcm []byte, f audio.Format, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.SampleRate != nativeSampleRate {
		conv := audio.FormatConverter{Target: audio.Format{SampleRate: nativeSampleRate, Channels: 1}}
		pcm = conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels}).Data
		f.Channels = 1
	}
	samples := audio.PCMToFloat32Mono(pcm, f.Channels)

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "error", err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
