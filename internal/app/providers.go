package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/speakdrill/internal/config"
	"github.com/MrWong99/speakdrill/internal/resilience"
	"github.com/MrWong99/speakdrill/pkg/provider/stt"
	"github.com/MrWong99/speakdrill/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/speakdrill/pkg/provider/stt/openai"
	"github.com/MrWong99/speakdrill/pkg/provider/stt/whisper"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
	"github.com/MrWong99/speakdrill/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/speakdrill/pkg/provider/tts/openai"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by [BuildProviders].
type Providers struct {
	STT stt.Provider
	TTS tts.Provider

	// closers release providers holding local resources, e.g. a loaded
	// whisper model.
	closers []io.Closer
}

// Close releases provider resources.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// healthy reports whether p has at least one backend whose circuit is not
// open. Providers without a breaker are assumed healthy.
func healthy(p any) bool {
	if h, ok := p.(interface{ Healthy() bool }); ok {
		return h.Healthy()
	}
	return p != nil
}

// RegisterBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from its implementation package.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms := entry.OptionInt("endpointing_ms", 0); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.BaseURL, whisperOptions(entry)...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		return whisper.NewNative(modelPath, whisperOptions(entry)...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if ms := entry.OptionInt("silence_ms", 0); ms > 0 {
			opts = append(opts, sttopenai.WithSilence(time.Duration(ms)*time.Millisecond))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
	for _, name := range reg.TTSNames() {
		slog.Debug("registered provider", "kind", "tts", "name", name)
	}
}

func whisperOptions(entry config.ProviderEntry) []whisper.Option {
	var opts []whisper.Option
	if entry.Model != "" && entry.Name == "whisper" {
		opts = append(opts, whisper.WithModel(entry.Model))
	}
	if lang := entry.OptionString("language", ""); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	if ms := entry.OptionInt("silence_ms", 0); ms > 0 {
		opts = append(opts, whisper.WithSilence(time.Duration(ms)*time.Millisecond))
	}
	if s := entry.OptionInt("max_utterance_s", 0); s > 0 {
		opts = append(opts, whisper.WithMaxUtterance(time.Duration(s)*time.Second))
	}
	return opts
}

// BuildProviders instantiates the providers named in cfg using the registry.
// Every configured slot is wrapped in a resilience fallback group so that
// the configured fallbacks take over when the primary fails.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Info("provider circuit changed", "provider", name, "from", from, "to", to)
			},
		},
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		primary, err := createSTT(reg, entry, ps)
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		group := resilience.NewSTTFallback(primary, entry.Name, fbCfg)
		for _, fb := range cfg.Fallbacks.STT {
			p, err := createSTT(reg, fb, ps)
			if err != nil {
				slog.Warn("skipping stt fallback", "name", fb.Name, "err", err)
				continue
			}
			group.AddFallback(fb.Name, p)
		}
		ps.STT = group
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallbacks", len(cfg.Fallbacks.STT))
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		primary, err := createTTS(reg, entry)
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		group := resilience.NewTTSFallback(primary, entry.Name, fbCfg)
		for _, fb := range cfg.Fallbacks.TTS {
			p, err := createTTS(reg, fb)
			if err != nil {
				slog.Warn("skipping tts fallback", "name", fb.Name, "err", err)
				continue
			}
			group.AddFallback(fb.Name, p)
		}
		ps.TTS = group
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "fallbacks", len(cfg.Fallbacks.TTS))
	}

	return ps, nil
}

func createSTT(reg *config.Registry, entry config.ProviderEntry, ps *Providers) (stt.Provider, error) {
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if c, ok := p.(io.Closer); ok {
		ps.closers = append(ps.closers, c)
	}
	return p, nil
}

func createTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	return p, nil
}
