// Package audio provides PCM format conversion for the wake-word pipeline.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// FormatConverter converts Chunks to a target format. It logs a warning on
// the first format mismatch and validates PCM data alignment. Conversion is
// deterministic: the same input always produces the same output.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a chunk to the target format. If the source format
// already matches the target, the chunk is returned unchanged (zero
// allocation). Conversion order: widen/narrow samples to 16-bit first, then
// resample, then channel convert.
func (c *FormatConverter) Convert(chunk Chunk) Chunk {
	// Validate: byte count must align with the source sample width.
	width := chunk.Width
	if width == 0 {
		width = 2
	}
	if len(chunk.Data)%(width*max(chunk.Channels, 1)) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: misaligned PCM data, dropping chunk",
				"bytes", len(chunk.Data),
				"rate", chunk.Rate,
				"width", width,
				"channels", chunk.Channels,
			)
		})
		return Chunk{
			Data:      nil,
			Rate:      c.Target.Rate,
			Width:     c.Target.Width,
			Channels:  c.Target.Channels,
			Timestamp: chunk.Timestamp,
		}
	}

	// Fast path: source matches target.
	if chunk.Rate == c.Target.Rate && width == c.Target.Width && chunk.Channels == c.Target.Channels {
		return chunk
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(chunk.Rate, width, chunk.Channels),
			"to", formatString(c.Target.Rate, c.Target.Width, c.Target.Channels),
		)
	})

	pcm := chunk.Data
	currentRate := chunk.Rate
	currentChannels := chunk.Channels

	// Step 1: Sample width. All downstream stages operate on 16-bit samples.
	switch width {
	case 1:
		pcm = Widen8To16(pcm)
	case 4:
		pcm = Narrow32To16(pcm)
	}

	// Step 2: Resample (avoids resampling stereo when target is mono).
	if currentRate != c.Target.Rate {
		if currentChannels == 1 {
			pcm = ResampleMono16(pcm, currentRate, c.Target.Rate)
		} else {
			pcm = ResampleStereo16(pcm, currentRate, c.Target.Rate)
		}
		currentRate = c.Target.Rate
	}

	// Step 3: Channel conversion.
	if currentChannels != c.Target.Channels {
		if currentChannels == 1 && c.Target.Channels == 2 {
			pcm = MonoToStereo(pcm)
		} else if currentChannels == 2 && c.Target.Channels == 1 {
			pcm = StereoToMono(pcm)
		}
		currentChannels = c.Target.Channels
	}

	return Chunk{
		Data:      pcm,
		Rate:      currentRate,
		Width:     c.Target.Width,
		Channels:  currentChannels,
		Timestamp: chunk.Timestamp,
	}
}

// Widen8To16 converts unsigned 8-bit PCM to signed 16-bit little-endian.
// 8-bit PCM is conventionally unsigned with a 0x80 midpoint.
func Widen8To16(pcm []byte) []byte {
	out := make([]byte, len(pcm)*2)
	for i, b := range pcm {
		s := (int16(b) - 128) << 8
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Narrow32To16 converts signed 32-bit little-endian PCM to signed 16-bit by
// dropping the low 16 bits of each sample.
func Narrow32To16(pcm []byte) []byte {
	samples := len(pcm) / 4
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		// The high half of a little-endian int32 is its upper two bytes.
		out[i*2] = pcm[i*4+2]
		out[i*2+1] = pcm[i*4+3]
	}
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	// Each stereo frame is 4 bytes (2 bytes L + 2 bytes R).
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit stereo PCM from srcRate to dstRate using
// linear interpolation. Each stereo frame is 4 bytes (L+R interleaved).
// If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		l0 := int16(pcm[srcIdx*4]) | int16(pcm[srcIdx*4+1])<<8
		r0 := int16(pcm[srcIdx*4+2]) | int16(pcm[srcIdx*4+3])<<8

		var l1, r1 int16
		if srcIdx+1 < srcFrames {
			l1 = int16(pcm[(srcIdx+1)*4]) | int16(pcm[(srcIdx+1)*4+1])<<8
			r1 = int16(pcm[(srcIdx+1)*4+2]) | int16(pcm[(srcIdx+1)*4+3])<<8
		} else {
			l1 = l0
			r1 = r0
		}

		lInterp := int16(float64(l0)*(1-frac) + float64(l1)*frac)
		rInterp := int16(float64(r0)*(1-frac) + float64(r1)*frac)

		out[i*4] = byte(lInterp)
		out[i*4+1] = byte(lInterp >> 8)
		out[i*4+2] = byte(rInterp)
		out[i*4+3] = byte(rInterp >> 8)
	}
	return out
}

// formatString returns a human-readable string for a PCM format,
// e.g. "48000Hz/16bit stereo".
func formatString(rate, width, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz/%dbit %s", rate, width*8, ch)
}
