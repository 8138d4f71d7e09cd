package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// FormatConverter adapts frames to a fixed Target format. The recognizer
// uses one to feed capture audio into an STT session and WriterSink uses one
// to play synthesized speech on the output device.
//
// A converter belongs to one stream; it is not safe for concurrent use.
type FormatConverter struct {
	Target Format

	logOnce sync.Once // partial-sample warning
}

// Convert returns frame in the target format. A frame already in the target
// format is returned as-is. Frames with an odd byte count or without a usable
// format come back empty, carrying the target format.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	from := frame.Format()
	to := c.Target
	out := AudioFrame{SampleRate: to.SampleRate, Channels: to.Channels, Timestamp: frame.Timestamp}
	if len(frame.Data)%bytesPerSample != 0 {
		c.logOnce.Do(func() {
			slog.Warn("audio: dropping frame with partial sample", "bytes", len(frame.Data), "format", from)
		})
		return out
	}
	if from == to {
		return frame
	}
	if from.SampleRate <= 0 || from.Channels <= 0 || to.SampleRate <= 0 || to.Channels <= 0 {
		return out
	}

	samples := Samples(frame.Data)
	samples = samples[:len(samples)-len(samples)%from.Channels]

	// Fewer channels first so the resampler does less work.
	if to.Channels < from.Channels {
		samples = Remix(samples, from.Channels, to.Channels)
		samples = Resample(samples, to.Channels, from.SampleRate, to.SampleRate)
	} else {
		samples = Resample(samples, from.Channels, from.SampleRate, to.SampleRate)
		samples = Remix(samples, from.Channels, to.Channels)
	}
	out.Data = PCM(samples)
	return out
}

// String renders f as e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Samples decodes 16-bit little-endian PCM. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
	}
	return out
}

// PCM encodes samples as 16-bit little-endian PCM.
func PCM(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// Remix changes the channel count of interleaved samples. Mixing down to
// mono averages all channels; any other change maps output channel c to
// input channel c mod from, so mono is duplicated across stereo.
func Remix(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int16, frames*to)
	for i := range frames {
		in := samples[i*from : (i+1)*from]
		if to == 1 {
			var sum int32
			for _, s := range in {
				sum += int32(s)
			}
			out[i] = int16(sum / int32(from))
			continue
		}
		for c := range to {
			out[i*to+c] = in[c%from]
		}
	}
	return out
}

// Resample converts interleaved samples from one sample rate to another by
// linear interpolation between neighbouring frames.
func Resample(samples []int16, channels, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || channels <= 0 {
		return samples
	}
	srcFrames := len(samples) / channels
	dstFrames := int(int64(srcFrames) * int64(to) / int64(from))
	out := make([]int16, dstFrames*channels)
	step := float64(from) / float64(to)
	for i := range dstFrames {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, srcFrames-1)
		for c := range channels {
			a := float64(samples[j*channels+c])
			b := float64(samples[next*channels+c])
			out[i*channels+c] = int16(math.Round(a + (b-a)*frac))
		}
	}
	return out
}

// PCMToFloat32Mono decodes interleaved 16-bit PCM into mono samples in
// [-1, 1], averaging the channels of each frame. whisper.cpp wants this.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	samples := Samples(pcm)
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += float32(s) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}
