// Package wire defines the JSON payload types carried inside the realtime
// dialog binary protocol. The frame header carries type, event framing, and
// session id; everything here travels as a (usually gzipped) JSON payload.
package wire

import "strings"

// StartSessionRequest is the payload of the StartSession event
// (client -> server). It configures recognition, synthesis, and the dialog
// persona for one session.
type StartSessionRequest struct {
	ASR    ASRConfig    `json:"asr"`
	TTS    TTSConfig    `json:"tts"`
	Dialog DialogConfig `json:"dialog"`
}

// ASRConfig configures speech recognition for the session.
type ASRConfig struct {
	Extra ASRExtra `json:"extra"`
}

// ASRExtra holds recognition tuning knobs.
type ASRExtra struct {
	// EndSmoothWindowMS is how long the recognizer waits after speech stops
	// before declaring the utterance finished.
	EndSmoothWindowMS int `json:"end_smooth_window_ms"`
}

// TTSConfig configures speech synthesis for the session.
type TTSConfig struct {
	Speaker     string      `json:"speaker"`
	AudioConfig AudioConfig `json:"audio_config"`
}

// AudioConfig describes the synthesized audio stream.
type AudioConfig struct {
	Channel    int    `json:"channel"`
	Format     string `json:"format"` // e.g. "pcm_s16le"
	SampleRate int    `json:"sample_rate"`
}

// DialogConfig configures the dialog persona and turn-taking behavior.
type DialogConfig struct {
	BotName       string      `json:"bot_name"`
	SystemRole    string      `json:"system_role"`
	SpeakingStyle string      `json:"speaking_style"`
	Extra         DialogExtra `json:"extra"`
}

// DialogExtra holds dialog tuning knobs.
type DialogExtra struct {
	StrictAudit   bool   `json:"strict_audit"`
	AuditResponse string `json:"audit_response,omitempty"`
	// RecvTimeout is how many seconds of silence the gateway tolerates
	// before ending the turn. Range 10..120.
	RecvTimeout int `json:"recv_timeout"`
	// InputMod selects the input modality: "audio", "text" or "audio_file".
	InputMod string `json:"input_mod"`
}

// ASRResponse is the payload of an ASR_RESPONSE event: the recognized text
// of the user's speech.
type ASRResponse struct {
	Results []ASRResult `json:"results"`
}

// ASRResult is one recognition hypothesis.
type ASRResult struct {
	Text string `json:"text"`
}

// ChatResponse is the payload of a CHAT_RESPONSE event: one chunk of the
// model's reply text. Chunks concatenate across events until CHAT_ENDED.
type ChatResponse struct {
	Content string `json:"content"`
}

// UsageResponse is the payload of a USAGE_RESPONSE event: per-turn token
// usage, keyed by counter name.
type UsageResponse struct {
	Usage map[string]int `json:"usage"`
}

// Total sums every usage counter.
func (u UsageResponse) Total() int {
	total := 0
	for _, v := range u.Usage {
		total += v
	}
	return total
}

// CachedTotal sums the counters for cache-served tokens.
func (u UsageResponse) CachedTotal() int {
	total := 0
	for k, v := range u.Usage {
		if strings.HasPrefix(k, "cached_") {
			total += v
		}
	}
	return total
}

// ErrorPayload is the JSON body of a SERVER_ERROR_RESPONSE frame.
type ErrorPayload struct {
	Error string `json:"error"`
}
