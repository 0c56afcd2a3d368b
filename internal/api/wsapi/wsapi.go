// Package wsapi implements the streaming RPC surface as a
// buffered-upload-over-websocket framing: a true incremental streaming
// decode is out of scope, so the client sends binary audio_chunk messages
// and the server accumulates them in memory until the client signals
// end-of-audio with a text frame (websockets have no half-close), then
// decodes and transcribes the whole buffer exactly like the HTTP surface
// does and streams one JSON message per resulting segment back over the
// same connection before closing it.
package wsapi

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/aldermoor/vocalis/internal/decode"
	"github.com/aldermoor/vocalis/internal/hallucinate"
	"github.com/aldermoor/vocalis/internal/orchestrator"
	"github.com/aldermoor/vocalis/pkg/options"
)

// streamSampleRate is the rate raw (non-RIFF) audio_chunk bytes are assumed
// to arrive at, matching the fixed model rate.
const streamSampleRate = 16000

// canonicalWAVHeaderBytes is the size of the minimal 44-byte canonical
// RIFF/WAVE header to skip on the concatenated stream when the first chunk
// begins with it.
const canonicalWAVHeaderBytes = 44

// maxStreamBytes bounds one session's accumulated buffer (~10 minutes of
// 16kHz mono 16-bit PCM) to keep a slow or malicious client from growing
// memory unbounded.
const maxStreamBytes = 16000 * 2 * 60 * 10

// Transcriber is the narrow capability Handler needs from the orchestrator.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte, req options.Request) (orchestrator.Result, error)
}

// Handler upgrades incoming requests to a websocket and serves the
// buffered-upload streaming protocol over it.
type Handler struct {
	transcriber Transcriber
	filter      *hallucinate.Filter
	logger      *slog.Logger
}

// Option configures a Handler during construction.
type Option func(*Handler)

// WithPhrases overrides the default hallucination phrase list.
func WithPhrases(phrases []string) Option {
	return func(h *Handler) { h.filter = hallucinate.New(phrases) }
}

// WithLogger overrides the default slog.Logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler backed by t.
func New(t Transcriber, opts ...Option) *Handler {
	h := &Handler{
		transcriber: t,
		filter:      hallucinate.New(nil),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the streaming route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/transcribe/stream", h.ServeWS)
}

// segmentMessage is one streamed response message: transcription, is_final,
// plus the optional affective scalars for the segment.
type segmentMessage struct {
	Transcription string  `json:"transcription"`
	IsFinal       bool    `json:"is_final"`
	Language      string  `json:"language,omitempty"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	Probability   float64 `json:"probability"`
	Gender        string  `json:"gender,omitempty"`
	Emotion       string  `json:"emotion,omitempty"`
	Arousal       float64 `json:"arousal,omitempty"`
	Valence       float64 `json:"valence,omitempty"`
}

// errorMessage is sent in place of any segment when Transcribe itself
// fails.
type errorMessage struct {
	Error string `json:"error"`
}

// ServeWS accepts a websocket connection, accumulates binary audio_chunk
// messages until the client sends a text frame (the end-of-audio marker;
// its content is ignored), then transcribes the whole buffer and streams
// back one JSON message per surviving segment. A read error before the
// marker means the client is gone — there is nobody left to stream to.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var buf []byte
	first := true
	skipHeader := false

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText {
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}

		if first {
			first = false
			skipHeader = isCanonicalWAVPrefix(data)
		}

		if len(buf)+len(data) > maxStreamBytes {
			h.writeError(ctx, conn, "stream exceeded maximum buffered size")
			conn.Close(websocket.StatusMessageTooBig, "buffer limit exceeded")
			return
		}
		buf = append(buf, data...)
	}

	if len(buf) == 0 {
		conn.Close(websocket.StatusNormalClosure, "no audio received")
		return
	}

	if skipHeader && len(buf) > canonicalWAVHeaderBytes {
		buf = buf[canonicalWAVHeaderBytes:]
	}

	payload := wrapWAV(buf, streamSampleRate)

	result, err := h.transcriber.Transcribe(ctx, payload, options.Request{
		Temperature:       options.Unset,
		BeamSize:          options.Unset,
		MinPitchHz:        options.Unset,
		MaxPitchHz:        options.Unset,
		LPFAlpha:          options.Unset,
		GenderThresholdHz: options.Unset,
	})
	if err != nil {
		h.logger.Error("streaming transcribe failed", "error", err)
		h.writeError(ctx, conn, "transcription failed")
		conn.Close(websocket.StatusInternalError, "transcription failed")
		return
	}

	for _, seg := range result.Segments {
		if seg.Text != "" && h.filter.IsHallucination(seg.Text) {
			continue
		}
		msg := segmentMessage{
			Transcription: seg.Text,
			IsFinal:       true,
			Language:      result.Language,
			Start:         seg.StartSec,
			End:           seg.EndSec,
			Probability:   seg.Probability,
			Gender:        seg.Affective.GenderProxy,
			Emotion:       seg.Affective.EmotionProxy,
			Arousal:       seg.Affective.Arousal,
			Valence:       seg.Affective.Valence,
		}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			h.logger.Warn("write segment failed, ending stream", "error", err)
			return
		}
	}

	conn.Close(websocket.StatusNormalClosure, "transcription complete")
}

func (h *Handler) writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, errorMessage{Error: msg}); err != nil {
		h.logger.Warn("write error message failed", "error", err)
	}
}

// isCanonicalWAVPrefix reports whether data begins with a RIFF/WAVE header,
// in which case the canonical 44-byte header is skipped on the
// concatenated stream.
func isCanonicalWAVPrefix(data []byte) bool {
	return decode.IsRIFFWAVE(data)
}

// wrapWAV synthesizes a minimal canonical RIFF/WAVE header around raw
// little-endian 16-bit mono PCM, so the accumulated buffer can be handed to
// the same decode path the HTTP surface uses instead of relying on the
// transcoder's raw-PCM fallback.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, canonicalWAVHeaderBytes+len(pcm))
	buf = append(buf, 'R', 'I', 'F', 'F')
	buf = appendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, 'W', 'A', 'V', 'E')

	buf = append(buf, 'f', 'm', 't', ' ')
	buf = appendUint32(buf, 16)
	buf = appendUint16(buf, 1) // PCM
	buf = appendUint16(buf, channels)
	buf = appendUint32(buf, uint32(sampleRate))
	buf = appendUint32(buf, uint32(byteRate))
	buf = appendUint16(buf, uint16(blockAlign))
	buf = appendUint16(buf, bitsPerSample)

	buf = append(buf, 'd', 'a', 't', 'a')
	buf = appendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)

	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
