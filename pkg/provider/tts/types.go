package tts

// Voice defaults carried over from the drill's original browser voice.
const (
	DefaultSpeedFactor = 1.05
	DefaultPitchShift  = 1.1
)

// VoiceProfile selects and tunes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice should speak, e.g. "en-US".
	Language string

	// PitchShift is a pitch multiplier (1.0 = unchanged). Providers without
	// pitch control ignore it.
	PitchShift float64

	// SpeedFactor is a speaking-rate multiplier (1.0 = unchanged).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// Speed returns SpeedFactor clamped to [lo, hi], or 1 when unset.
func (v VoiceProfile) Speed(lo, hi float64) float64 {
	s := v.SpeedFactor
	if s <= 0 {
		return 1
	}
	return min(max(s, lo), hi)
}
