// Package config provides the configuration schema, loader, and provider registry
// for the speakdrill CLI.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LexiconSource selects where drill entries come from.
type LexiconSource string

const (
	LexiconBuiltin  LexiconSource = "builtin"
	LexiconFile     LexiconSource = "file"
	LexiconSQLite   LexiconSource = "sqlite"
	LexiconPostgres LexiconSource = "postgres"
)

// IsValid reports whether s is a recognised lexicon source.
func (s LexiconSource) IsValid() bool {
	switch s {
	case LexiconBuiltin, LexiconFile, LexiconSQLite, LexiconPostgres:
		return true
	}
	return false
}

// UIMode selects the display sink.
type UIMode string

const (
	// UIAuto picks the TUI when stdout is a terminal and plain output otherwise.
	UIAuto  UIMode = "auto"
	UITUI   UIMode = "tui"
	UIPlain UIMode = "plain"
)

// IsValid reports whether m is a recognised UI mode.
func (m UIMode) IsValid() bool {
	return m == UIAuto || m == UITUI || m == UIPlain
}

// Config is the root configuration structure for speakdrill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Drill     DrillConfig     `yaml:"drill"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Providers ProvidersConfig `yaml:"providers"`
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
	Voice     VoiceConfig     `yaml:"voice"`
	Audio     AudioConfig     `yaml:"audio"`
	UI        UIConfig        `yaml:"ui"`
}

// ServerConfig holds the status server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives logs while the TUI owns the terminal. Empty means
	// logs are discarded in TUI mode.
	LogFile string `yaml:"log_file"`
}

// DrillConfig holds the per-turn timing. Durations use Go syntax ("5s",
// "1400ms").
type DrillConfig struct {
	// TimeLimit is how long the learner has to answer each prompt.
	TimeLimit time.Duration `yaml:"time_limit"`

	// Tick is the countdown display interval.
	Tick time.Duration `yaml:"tick"`

	// AdvanceDelay is the pause after a correct answer.
	AdvanceDelay time.Duration `yaml:"advance_delay"`

	// RetryDelay is the pause before a prompt is repeated.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Language is the BCP-47 recognition language.
	Language string `yaml:"language"`
}

// LexiconConfig selects the drill entries.
type LexiconConfig struct {
	Source LexiconSource `yaml:"source"`

	// Path is the YAML/TOML file for the file source, or the database file
	// for the sqlite source.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string for the postgres source.
	DSN string `yaml:"dsn"`

	// Name selects a stored lexicon in sqlite or postgres.
	Name string `yaml:"name"`
}

// ProvidersConfig declares which provider implementation to use for speech
// recognition and synthesis. Each field selects a named provider registered
// in the [Registry]. An empty STT name means typed answers only.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// FallbacksConfig lists providers tried in order when the primary fails.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// VoiceConfig specifies the synthesis voice for prompts.
type VoiceConfig struct {
	// Provider is the TTS provider name the voice belongs to.
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// PitchShift is a pitch multiplier. 1.0 leaves the pitch unchanged.
	PitchShift float64 `yaml:"pitch_shift"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 1.0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// AudioConfig wires raw PCM streams to the recognizer and speaker.
type AudioConfig struct {
	// Input is a file or FIFO delivering signed 16-bit little-endian PCM,
	// e.g. the output of `arecord -t raw`. "-" reads stdin.
	Input string `yaml:"input"`

	// InputSampleRate and InputChannels describe Input.
	InputSampleRate int `yaml:"input_sample_rate"`
	InputChannels   int `yaml:"input_channels"`

	// Output is a file or FIFO receiving synthesized PCM. Empty discards
	// playback audio.
	Output string `yaml:"output"`

	// OutputSampleRate and OutputChannels describe Output.
	OutputSampleRate int `yaml:"output_sample_rate"`
	OutputChannels   int `yaml:"output_channels"`
}

// UIConfig selects the display.
type UIConfig struct {
	Mode UIMode `yaml:"mode"`
}
