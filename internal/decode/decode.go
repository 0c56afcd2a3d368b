// Package decode turns an arbitrary audio byte payload into mono 16-bit PCM.
//
// It recognises RIFF/WAVE containers via a chunk walker and downmixes
// multi-channel audio to mono. Anything that is not a recognisable RIFF/WAVE
// file is the caller's responsibility to transcode first (see
// github.com/aldermoor/vocalis/pkg/transcoder) or treat as raw 16 kHz mono
// PCM — this package never guesses at other container formats.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind enumerates the typed failure reasons the decoder can report.
type Kind int

const (
	// KindInvalidContainer means the RIFF/WAVE structure itself is malformed
	// beyond what the self-healing rules can repair (e.g. no data chunk).
	KindInvalidContainer Kind = iota

	// KindUnsupportedFormat means the fmt chunk declares an audio format tag
	// other than PCM (1) or WAVE_FORMAT_EXTENSIBLE (0xFFFE).
	KindUnsupportedFormat

	// KindUnsupportedBitDepth means bits-per-sample is not 16.
	KindUnsupportedBitDepth

	// KindTruncated means the payload ended before a required chunk could be
	// fully read.
	KindTruncated
)

func (k Kind) String() string {
	switch k {
	case KindInvalidContainer:
		return "invalid_container"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindUnsupportedBitDepth:
		return "unsupported_bit_depth"
	case KindTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Decode. The decoder never panics on
// malformed input — every rejection surfaces as an Error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode: %s: %s", e.Kind, e.Msg)
}

func fail(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// AsError reports whether err is (or wraps) a *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// Audio is a fully-decoded buffer of mono 16-bit linear PCM samples.
type Audio struct {
	// PCM is little-endian signed 16-bit mono samples.
	PCM []byte

	// SampleRate is the container's declared sample rate in Hz.
	SampleRate int

	// OrigChannels is the channel count before downmix (always 1 after
	// Decode returns, but this records what the source actually carried).
	OrigChannels int

	// Warnings lists the self-healing repairs Decode applied (zero-size fmt
	// chunk, data chunk truncated to the remaining payload). Empty for a
	// well-formed container.
	Warnings []string
}

// SampleCount returns the number of mono 16-bit samples in PCM.
func (a Audio) SampleCount() int { return len(a.PCM) / 2 }

const (
	riffMagic = "RIFF"
	waveMagic = "WAVE"
	fmtChunk  = "fmt "
	dataChunk = "data"

	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	minHeaderLen   = 12
	chunkHeaderLen = 8
)

// IsRIFFWAVE reports whether payload begins with a RIFF/WAVE header — the
// test a caller uses to decide whether to attempt RIFF parsing at all.
func IsRIFFWAVE(payload []byte) bool {
	if len(payload) < minHeaderLen {
		return false
	}
	return string(payload[0:4]) == riffMagic && string(payload[8:12]) == waveMagic
}

// Decode parses payload as a RIFF/WAVE container. Callers must check
// IsRIFFWAVE first (or attempt an external transcode, or fall back to raw
// PCM) — Decode itself only understands RIFF/WAVE.
func Decode(payload []byte) (Audio, error) {
	if !IsRIFFWAVE(payload) {
		return Audio{}, fail(KindInvalidContainer, "missing RIFF/WAVE header")
	}

	var (
		offset        = minHeaderLen
		sampleRate    int
		channels      int
		bitsPerSample int
		fmtFound      bool
		pcmStart      int
		pcmLen        int
		dataFound     bool
		warnings      []string
	)

	for offset+chunkHeaderLen <= len(payload) {
		id := string(payload[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(payload[offset+4 : offset+8]))
		body := offset + chunkHeaderLen

		if size < 0 || (body+size > len(payload) && id != dataChunk) {
			// Bounds violation: stop walking rather than read out of range.
			// A data chunk is exempt: its length is clamped to the remaining
			// payload below.
			break
		}

		switch id {
		case fmtChunk:
			effSize := size
			if effSize < 16 {
				// Self-heal: a zero (or too-small) fmt chunk size is assumed
				// to be the standard 16-byte PCM fmt block.
				effSize = 16
				if body+effSize > len(payload) {
					return Audio{}, fail(KindTruncated, "fmt chunk truncated after self-heal")
				}
				warnings = append(warnings, fmt.Sprintf("fmt chunk size %d self-healed to 16", size))
			}
			formatTag := binary.LittleEndian.Uint16(payload[body : body+2])
			if formatTag != wavFormatPCM && formatTag != wavFormatExtensible {
				return Audio{}, fail(KindUnsupportedFormat, "format tag %#x", formatTag)
			}
			channels = int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(payload[body+14 : body+16]))
			fmtFound = true
			offset = body + effSize
			size = effSize
		case dataChunk:
			if !fmtFound {
				return Audio{}, fail(KindInvalidContainer, "data chunk before fmt chunk")
			}
			pcmStart = body
			pcmLen = size
			dataFound = true
			offset = body + size
		default:
			offset = body + size
		}

		if size%2 != 0 && offset < len(payload) {
			offset++
		}
		if dataFound {
			break
		}
	}

	if !fmtFound {
		return Audio{}, fail(KindInvalidContainer, "no fmt chunk found")
	}
	if !dataFound {
		return Audio{}, fail(KindInvalidContainer, "no data chunk found")
	}
	if bitsPerSample != 16 {
		return Audio{}, fail(KindUnsupportedBitDepth, "bits_per_sample=%d", bitsPerSample)
	}
	if channels < 1 {
		channels = 1
	}

	remaining := len(payload) - pcmStart
	if pcmLen > remaining {
		// Truncated relative to the declared size: clamp and surface as a
		// (non-fatal) truncation rather than reading out of bounds.
		warnings = append(warnings, fmt.Sprintf("data chunk declares %d bytes but only %d remain; truncated", pcmLen, remaining))
		pcmLen = remaining
	}
	if pcmLen < 0 {
		pcmLen = 0
	}

	raw := payload[pcmStart : pcmStart+pcmLen]
	mono := downmix(raw, channels)

	return Audio{
		PCM:          mono,
		SampleRate:   sampleRate,
		OrigChannels: channels,
		Warnings:     warnings,
	}, nil
}

// downmix converts interleaved 16-bit PCM with the given channel count to
// mono. 1 channel is a straight copy; 2 channels average L+R with a 32-bit
// accumulator; N>2 takes channel 0 only.
func downmix(raw []byte, channels int) []byte {
	if channels <= 1 {
		out := make([]byte, len(raw)-len(raw)%2)
		copy(out, raw)
		return out
	}

	frameBytes := channels * 2
	frames := len(raw) / frameBytes
	out := make([]byte, frames*2)

	switch channels {
	case 2:
		for i := 0; i < frames; i++ {
			base := i * frameBytes
			l := int32(int16(binary.LittleEndian.Uint16(raw[base : base+2])))
			r := int32(int16(binary.LittleEndian.Uint16(raw[base+2 : base+4])))
			avg := int16((l + r) / 2)
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(avg))
		}
	default:
		for i := 0; i < frames; i++ {
			base := i * frameBytes
			sample := binary.LittleEndian.Uint16(raw[base : base+2])
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], sample)
		}
	}
	return out
}
