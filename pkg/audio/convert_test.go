package audio_test

import (
	"encoding/binary"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/speakdrill/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian PCM to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestRemix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		from, to int
		want     []int16
	}{
		{"same layout", []int16{1, 2, 3}, 1, 1, []int16{1, 2, 3}},
		{"mono to stereo", []int16{100, 200, 300}, 1, 2, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", []int16{100, 200, -100, -200}, 2, 1, []int16{150, -150}},
		{"stereo to mono at full scale", []int16{32767, 32767, -32768, -32768}, 2, 1, []int16{32767, -32768}},
		{"partial frame dropped", []int16{100, 200, 300}, 2, 1, []int16{150}},
		{"stereo to quad", []int16{1, 2}, 2, 4, []int16{1, 2, 1, 2}},
		{"zero channels untouched", []int16{1, 2}, 0, 1, []int16{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Remix(tt.in, tt.from, tt.to)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		src, dst int
		want     []int16
	}{
		{"same rate", []int16{100, 200, 300}, 1, 48000, 48000, []int16{100, 200, 300}},
		{"mono upsample interpolates", []int16{0, 300}, 1, 16000, 48000, []int16{0, 100, 200, 300, 300, 300}},
		{"mono downsample capture", []int16{100, 200, 300, 400, 500, 600}, 1, 48000, 16000, []int16{100, 400}},
		{"stereo keeps channels apart", []int16{0, 1000, 300, 1000}, 2, 16000, 32000, []int16{0, 1000, 150, 1000, 300, 1000, 300, 1000}},
		{"zero src untouched", []int16{100, 200}, 1, 0, 48000, []int16{100, 200}},
		{"zero dst untouched", []int16{100, 200}, 1, 48000, 0, []int16{100, 200}},
		{"empty", nil, 1, 16000, 48000, []int16{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Resample(tt.in, tt.channels, tt.src, tt.dst)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSamplesPCM(t *testing.T) {
	t.Parallel()

	in := []int16{-32768, -1, 0, 1, 32767}
	pcm := audio.PCM(in)
	if !slices.Equal(pcm, samplesToBytes(in)) {
		t.Errorf("PCM = %v", pcm)
	}
	if got := audio.Samples(append(pcm, 0xFF)); !slices.Equal(got, in) {
		t.Errorf("Samples = %v, want %v", got, in)
	}
}

func TestFormatConverter_PassThrough(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{Data: samplesToBytes([]int16{100, 200}), SampleRate: 16000, Channels: 1}
	result := conv.Convert(frame)
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected the same slice for a matching format")
	}
}

func TestFormatConverter_CaptureToRecognizer(t *testing.T) {
	t.Parallel()
	// 48 kHz stereo capture into a 16 kHz mono recognizer.
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       samplesToBytes([]int16{300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100}),
		SampleRate: 48000,
		Channels:   2,
		Timestamp:  time.Second,
	}
	result := conv.Convert(frame)
	if result.SampleRate != 16000 || result.Channels != 1 {
		t.Fatalf("format = %dHz %dch, want 16000Hz mono", result.SampleRate, result.Channels)
	}
	if result.Timestamp != time.Second {
		t.Errorf("Timestamp = %v, want 1s", result.Timestamp)
	}
	got := bytesToSamples(result.Data)
	if !slices.Equal(got, []int16{200, 200}) {
		t.Errorf("samples = %v, want [200 200]", got)
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{22050, 16000} {
		conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
		result := conv.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: rate, Channels: 1})
		if len(result.Data) != 0 {
			t.Errorf("rate %d: expected dropped frame, got %d bytes", rate, len(result.Data))
		}
		if result.SampleRate != 16000 || result.Channels != 1 {
			t.Errorf("rate %d: dropped frame should carry the target format", rate)
		}
	}
}

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float32
	}{
		{"empty", nil, 1, []float32{}},
		{"full scale", samplesToBytes([]int16{-32768, 0, 16384}), 1, []float32{-1, 0, 0.5}},
		{"odd byte ignored", append(samplesToBytes([]int16{16384}), 0xFF), 1, []float32{0.5}},
		{"zero channels is mono", samplesToBytes([]int16{16384}), 0, []float32{0.5}},
		{"stereo averaged", samplesToBytes([]int16{16384, 0, -16384, -16384}), 2, []float32{0.25, -0.5}},
		{"three channels", samplesToBytes([]int16{16384, 16384, 16384}), 3, []float32{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.PCMToFloat32Mono(tt.pcm, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatConverter_SynthesisToSpeaker(t *testing.T) {
	t.Parallel()
	// 16 kHz mono speech onto a 32 kHz stereo output device.
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 32000, Channels: 2}}
	result := conv.Convert(audio.AudioFrame{Data: samplesToBytes([]int16{0, 200}), SampleRate: 16000, Channels: 1})
	got := bytesToSamples(result.Data)
	want := []int16{0, 0, 100, 100, 200, 200, 200, 200}
	if !slices.Equal(got, want) {
		t.Errorf("samples = %v, want %v", got, want)
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormat_Durations(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	if got := f.BytesPerSecond(); got != 32000 {
		t.Errorf("BytesPerSecond = %d, want 32000", got)
	}
	if got := f.Duration(3200); got != 100*time.Millisecond {
		t.Errorf("Duration(3200) = %v, want 100ms", got)
	}
	if got := f.Bytes(20 * time.Millisecond); got != 640 {
		t.Errorf("Bytes(20ms) = %d, want 640", got)
	}
	stereo := audio.Format{SampleRate: 44100, Channels: 2}
	if got := stereo.Bytes(time.Millisecond); got%4 != 0 {
		t.Errorf("Bytes should align to a stereo frame, got %d", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
}
