package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DrillChanged is true when any per-turn timing or the recognition
	// language changed. The new values apply from the next prompt.
	DrillChanged bool
	NewDrill     DrillConfig

	// RestartRequired lists sections whose changes only take effect after
	// a restart (providers, lexicon, audio, ui, voice, listen address).
	RestartRequired []string
}

// IsEmpty reports whether d carries no changes at all.
func (d ConfigDiff) IsEmpty() bool {
	return !d.LogLevelChanged && !d.DrillChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Drill != new.Drill {
		d.DrillChanged = true
		d.NewDrill = new.Drill
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Lexicon != new.Lexicon {
		d.RestartRequired = append(d.RestartRequired, "lexicon")
	}
	if !providerEntryEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEntryEqual(old.Providers.TTS, new.Providers.TTS) ||
		!entriesEqual(old.Fallbacks.STT, new.Fallbacks.STT) ||
		!entriesEqual(old.Fallbacks.TTS, new.Fallbacks.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.UI != new.UI {
		d.RestartRequired = append(d.RestartRequired, "ui")
	}

	return d
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !providerEntryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// providerEntryEqual compares entries field by field. Options may hold
// nested maps.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
