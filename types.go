package dialog

import "fmt"

// Event codes framed after the binary header. Client events flow up on full
// and audio-only requests; server events come back on full-response and ACK
// frames.
const (
	// Client -> server.
	EventStartConnection  int32 = 1
	EventFinishConnection int32 = 2
	EventStartSession     int32 = 100
	EventFinishSession    int32 = 102
	EventTaskRequest      int32 = 200

	// Server -> client, connection/session lifecycle.
	EventConnectionStarted  int32 = 50
	EventConnectionFailed   int32 = 51
	EventConnectionFinished int32 = 52
	EventSessionStarted     int32 = 150
	EventSessionFinished    int32 = 152
	EventSessionFailed      int32 = 153
	EventUsageResponse      int32 = 154

	// Server -> client, synthesized speech.
	EventTTSSentenceStart int32 = 350
	EventTTSSentenceEnd   int32 = 351
	EventTTSResponse      int32 = 352
	EventTTSEnded         int32 = 359

	// Server -> client, speech recognition.
	EventASRInfo     int32 = 450
	EventASRResponse int32 = 451
	EventASREnded    int32 = 459

	// Server -> client, model reply text.
	EventChatResponse int32 = 550
	EventChatEnded    int32 = 559
)

// Config holds connection and session parameters for the dialog gateway.
// Zero fields are filled with the documented defaults on Connect.
type Config struct {
	Endpoint  string // WebSocket URL of the dialog gateway
	AppID     string // application id issued by the console
	AccessKey string // api access key issued by the console

	ResourceID string // resource id; defaults to the dialog resource
	AppKey     string // protocol app key; fixed value, defaulted
	ConnectID  string // connection trace id; a random UUID when empty

	Speaker       string // TTS voice
	BotName       string
	SystemRole    string
	SpeakingStyle string

	InputMode   string // "audio", "text" or "audio_file"; defaults to "audio"
	RecvTimeout int    // seconds of silence tolerated by the gateway, 10..120
}

// Transcription is a piece of recognized or synthesized speech text.
type Transcription struct {
	Text     string
	Finished bool
}

// Usage summarises token consumption for one interaction turn.
type Usage struct {
	TotalTokens  int
	CachedTokens int
}

// ServerError is a structured error frame from the gateway.
type ServerError struct {
	Code    uint32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("dialog: server error %d: %s", e.Code, e.Message)
}

// ServerMessage is one decoded server event, normalized for handlers. Only
// the fields relevant to the event are set.
type ServerMessage struct {
	Event     int32
	SessionID string

	// Interrupted is set when the recognizer detects the user speaking,
	// signalling the client to stop playing the current reply.
	Interrupted bool

	// InputTranscription carries recognized text of the user's speech.
	InputTranscription *Transcription
	// OutputTranscription carries a chunk of the model's reply text.
	OutputTranscription *Transcription

	// Audio is one chunk of synthesized speech.
	Audio []byte
	// TurnComplete marks the end of synthesized audio for the turn.
	TurnComplete bool

	Usage *Usage

	// Err is set when the gateway sent an error frame.
	Err *ServerError
}

// Handler is a callback for decoded server messages.
type Handler func(ServerMessage)
