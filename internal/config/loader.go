package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speakdrill/internal/drill"
	"github.com/MrWong99/speakdrill/pkg/provider/tts"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "whisper-native", "openai"},
	"tts": {"elevenlabs", "openai"},
}

// Defaults for fields that [ApplyDefaults] fills in.
const (
	DefaultListenAddr = ":9090"
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env: %w", err)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references in secrets, applies defaults and validates the result.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: builtin
// lexicon, no providers, automatic UI.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func expandSecrets(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expand(&cfg.Providers.STT)
	expand(&cfg.Providers.TTS)
	for i := range cfg.Fallbacks.STT {
		expand(&cfg.Fallbacks.STT[i])
	}
	for i := range cfg.Fallbacks.TTS {
		expand(&cfg.Fallbacks.TTS[i])
	}
	cfg.Lexicon.DSN = os.ExpandEnv(cfg.Lexicon.DSN)
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Drill.TimeLimit == 0 {
		cfg.Drill.TimeLimit = drill.DefaultTimeLimit
	}
	if cfg.Drill.Tick == 0 {
		cfg.Drill.Tick = drill.DefaultTick
	}
	if cfg.Drill.AdvanceDelay == 0 {
		cfg.Drill.AdvanceDelay = drill.DefaultAdvanceDelay
	}
	if cfg.Drill.RetryDelay == 0 {
		cfg.Drill.RetryDelay = drill.DefaultRetryDelay
	}
	if cfg.Drill.Language == "" {
		cfg.Drill.Language = drill.DefaultLanguage
	}

	if cfg.Lexicon.Source == "" {
		cfg.Lexicon.Source = LexiconBuiltin
	}

	if cfg.Voice.Provider == "" {
		cfg.Voice.Provider = cfg.Providers.TTS.Name
	}
	if cfg.Voice.SpeedFactor == 0 {
		cfg.Voice.SpeedFactor = tts.DefaultSpeedFactor
	}
	if cfg.Voice.PitchShift == 0 {
		cfg.Voice.PitchShift = tts.DefaultPitchShift
	}

	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = DefaultSampleRate
	}
	if cfg.Audio.InputChannels == 0 {
		cfg.Audio.InputChannels = DefaultChannels
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultSampleRate
	}
	if cfg.Audio.OutputChannels == 0 {
		cfg.Audio.OutputChannels = DefaultChannels
	}

	if cfg.UI.Mode == "" {
		cfg.UI.Mode = UIAuto
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Drill timing
	for _, d := range []struct {
		name  string
		value int64
	}{
		{"drill.time_limit", int64(cfg.Drill.TimeLimit)},
		{"drill.tick", int64(cfg.Drill.Tick)},
		{"drill.advance_delay", int64(cfg.Drill.AdvanceDelay)},
		{"drill.retry_delay", int64(cfg.Drill.RetryDelay)},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if cfg.Drill.Tick > 0 && cfg.Drill.TimeLimit > 0 && cfg.Drill.Tick > cfg.Drill.TimeLimit {
		errs = append(errs, fmt.Errorf("drill.tick %s exceeds drill.time_limit %s", cfg.Drill.Tick, cfg.Drill.TimeLimit))
	}

	// Lexicon
	switch src := cfg.Lexicon.Source; {
	case src == "" || src == LexiconBuiltin:
	case !src.IsValid():
		errs = append(errs, fmt.Errorf("lexicon.source %q is invalid; valid values: builtin, file, sqlite, postgres", src))
	case (src == LexiconFile || src == LexiconSQLite) && cfg.Lexicon.Path == "":
		errs = append(errs, fmt.Errorf("lexicon.path is required when source is %s", src))
	case src == LexiconPostgres && cfg.Lexicon.DSN == "":
		errs = append(errs, fmt.Errorf("lexicon.dsn is required when source is postgres"))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Fallbacks.STT {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("fallbacks.stt[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Fallbacks.TTS {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("fallbacks.tts[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Fallbacks.STT) > 0 {
		errs = append(errs, fmt.Errorf("fallbacks.stt requires providers.stt"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Fallbacks.TTS) > 0 {
		errs = append(errs, fmt.Errorf("fallbacks.tts requires providers.tts"))
	}

	// Voice
	if cfg.Voice.SpeedFactor != 0 && (cfg.Voice.SpeedFactor < 0.5 || cfg.Voice.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Voice.SpeedFactor))
	}
	if cfg.Voice.PitchShift < 0 || cfg.Voice.PitchShift > 2.0 {
		errs = append(errs, fmt.Errorf("voice.pitch_shift %.2f is out of range [0, 2.0]", cfg.Voice.PitchShift))
	}
	if cfg.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && cfg.Voice.Provider != cfg.Providers.TTS.Name {
		slog.Warn("voice provider does not match configured TTS provider",
			"voice_provider", cfg.Voice.Provider,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}

	// Audio
	if cfg.Audio.InputSampleRate < 0 || cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio sample rates must be positive"))
	}
	if !validChannels(cfg.Audio.InputChannels) {
		errs = append(errs, fmt.Errorf("audio.input_channels %d is invalid; valid values: 1, 2", cfg.Audio.InputChannels))
	}
	if !validChannels(cfg.Audio.OutputChannels) {
		errs = append(errs, fmt.Errorf("audio.output_channels %d is invalid; valid values: 1, 2", cfg.Audio.OutputChannels))
	}
	if cfg.Providers.STT.Name != "" && cfg.Audio.Input == "" {
		slog.Warn("providers.stt is configured but audio.input is empty; spoken answers cannot be captured")
	}

	// UI
	if cfg.UI.Mode != "" && !cfg.UI.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("ui.mode %q is invalid; valid values: auto, tui, plain", cfg.UI.Mode))
	}

	return errors.Join(errs...)
}

func validChannels(n int) bool {
	return n == 0 || n == 1 || n == 2
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// parse decodes data; used by the watcher so the file is read once.
func parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
