// Package httpapi implements the HTTP multipart upload surface. It is a
// thin protocol adapter over internal/orchestrator.Orchestrator: decode the
// multipart form, resolve per-call options, call Transcribe, apply the
// text-artifact hallucination filter to the text the response carries,
// sanitize UTF-8, and encode the JSON response shape.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aldermoor/vocalis/internal/hallucinate"
	"github.com/aldermoor/vocalis/internal/orchestrator"
	"github.com/aldermoor/vocalis/pkg/options"
)

// maxUploadBytes bounds the multipart form size Handler will read into
// memory before spilling to temp files; chosen generously for voice clips
// (200 MiB) without being unbounded.
const maxUploadBytes = 200 << 20

// Transcriber is the narrow capability Handler needs from the orchestrator,
// kept as an interface so tests can stub it without building a real pool.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte, req options.Request) (orchestrator.Result, error)
}

// Handler serves the multipart upload endpoint(s). It is safe for
// concurrent use; all state is read-only after construction.
type Handler struct {
	transcriber Transcriber
	filter      *hallucinate.Filter
	logger      *slog.Logger
}

// Option configures a Handler during construction.
type Option func(*Handler)

// WithPhrases overrides the default hallucination phrase list, so a
// deployment can localize or extend it.
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

// Register adds the upload routes to mux. Both paths are aliases of the
// same handler: /v1/transcribe is this service's native route,
// /v1/audio/transcriptions is an OpenAI-compatible alias.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/transcribe", h.Transcribe)
	mux.HandleFunc("POST /v1/audio/transcriptions", h.Transcribe)
}

// wordResponse is one token-level entry in a segment's "words" array.
type wordResponse struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// segmentResponse is one entry in the response's "segments" array.
type segmentResponse struct {
	Text             string         `json:"text"`
	Start            float64        `json:"start"`
	End              float64        `json:"end"`
	Probability      float64        `json:"probability"`
	SpeakerTurnNext  bool           `json:"speaker_turn_next"`
	SpeakerID        string         `json:"speaker_id"`
	Gender           string         `json:"gender"`
	Emotion          string         `json:"emotion"`
	Arousal          float64        `json:"arousal"`
	Valence          float64        `json:"valence"`
	PitchMean        float64        `json:"pitch_mean"`
	PitchStd         float64        `json:"pitch_std"`
	EnergyMean       float64        `json:"energy_mean"`
	EnergyStd        float64        `json:"energy_std"`
	SpectralCentroid float64        `json:"spectral_centroid"`
	ZeroCrossingRate float64        `json:"zero_crossing_rate"`
	SpeakerVec       [8]float64     `json:"speaker_vec"`
	Words            []wordResponse `json:"words"`
}

// metaResponse carries processing diagnostics alongside the transcript.
type metaResponse struct {
	ProcessingTime float64 `json:"processing_time"`
	RTF            float64 `json:"rtf"`
	InputSR        int     `json:"input_sr"`
	InputChannels  int     `json:"input_channels"`
}

// transcribeResponse is the full JSON response body returned by the HTTP
// multipart upload surface.
type transcribeResponse struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Duration float64           `json:"duration"`
	Segments []segmentResponse `json:"segments"`
	Meta     metaResponse      `json:"meta"`
}

// Transcribe handles one multipart upload request: form fields "file"
// (required), "language", "prompt", "temperature", "beam_size", "translate",
// "diarization".
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing required form field \"file\"")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading uploaded file: "+err.Error())
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.transcriber.Transcribe(r.Context(), payload, req)
	if err != nil {
		h.logger.Error("transcribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	resp := h.toResponse(result, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// toResponse maps an orchestrator.Result onto the wire shape, applying the
// text-artifact hallucination filter and UTF-8 sanitization to every
// segment's text before it leaves the process.
func (h *Handler) toResponse(result orchestrator.Result, elapsed time.Duration) transcribeResponse {
	var fullText strings.Builder
	segments := make([]segmentResponse, 0, len(result.Segments))

	for _, seg := range result.Segments {
		text := sanitizeUTF8(seg.Text)
		if text != "" && h.filter.IsHallucination(text) {
			continue
		}

		words := make([]wordResponse, 0, len(seg.Words))
		for _, wd := range seg.Words {
			words = append(words, wordResponse{
				Word:        sanitizeUTF8(wd.Text),
				Start:       wd.StartSec,
				End:         wd.EndSec,
				Probability: wd.Probability,
			})
		}

		segments = append(segments, segmentResponse{
			Text:             text,
			Start:            seg.StartSec,
			End:              seg.EndSec,
			Probability:      seg.Probability,
			SpeakerTurnNext:  seg.SpeakerTurnNext,
			SpeakerID:        seg.SpeakerID,
			Gender:           seg.Affective.GenderProxy,
			Emotion:          seg.Affective.EmotionProxy,
			Arousal:          seg.Affective.Arousal,
			Valence:          seg.Affective.Valence,
			PitchMean:        seg.Affective.PitchMeanHz,
			PitchStd:         seg.Affective.PitchStdHz,
			EnergyMean:       seg.Affective.EnergyMean,
			EnergyStd:        seg.Affective.EnergyStd,
			SpectralCentroid: seg.Affective.SpectralCentroid,
			ZeroCrossingRate: seg.Affective.ZeroCrossingRate,
			SpeakerVec:       seg.Affective.SpeakerVec,
			Words:            words,
		})

		if text != "" {
			if fullText.Len() > 0 {
				fullText.WriteByte(' ')
			}
			fullText.WriteString(text)
		}
	}

	rtf := 0.0
	if result.DurationSec > 0 {
		rtf = elapsed.Seconds() / result.DurationSec
	}

	return transcribeResponse{
		Text:     fullText.String(),
		Language: result.Language,
		Duration: result.DurationSec,
		Segments: segments,
		Meta: metaResponse{
			ProcessingTime: elapsed.Seconds(),
			RTF:            rtf,
			InputSR:        result.InputSampleRate,
			InputChannels:  result.InputChannels,
		},
	}
}

// parseRequest builds an options.Request from multipart form fields,
// defaulting every numeric field to options.Unset so unspecified fields
// inherit the server's defaults.
func parseRequest(r *http.Request) (options.Request, error) {
	req := options.Request{
		Language:          r.FormValue("language"),
		Temperature:       options.Unset,
		BeamSize:          options.Unset,
		MinPitchHz:        options.Unset,
		MaxPitchHz:        options.Unset,
		LPFAlpha:          options.Unset,
		GenderThresholdHz: options.Unset,
	}
	req.InitialPrompt = r.FormValue("prompt")

	if v := r.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return options.Request{}, fmt.Errorf("invalid temperature %q", v)
		}
		req.Temperature = t
	}
	if v := r.FormValue("beam_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return options.Request{}, fmt.Errorf("invalid beam_size %q", v)
		}
		req.BeamSize = n
	}
	if v := r.FormValue("translate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return options.Request{}, fmt.Errorf("invalid translate %q", v)
		}
		req.Translate = b
	}
	if v := r.FormValue("diarization"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return options.Request{}, fmt.Errorf("invalid diarization %q", v)
		}
		req.Diarization = b
	}

	return req, nil
}

// sanitizeUTF8 drops invalid byte sequences from a text field before it
// leaves the process.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
