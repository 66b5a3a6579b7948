// Package dialog provides a Go client for the realtime speech dialog
// gateway. It connects over WebSocket, negotiates a connection and a
// session, streams input audio up, and delivers recognized speech, reply
// text, and synthesized audio back through a handler.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/volcvoice/dialog-go-sdk/frame"
	"github.com/volcvoice/dialog-go-sdk/wire"
)

// DefaultResourceID identifies the realtime dialog service.
const DefaultResourceID = "volc.speech.dialog"

// DefaultSpeaker is the TTS voice used when Config.Speaker is empty.
const DefaultSpeaker = "zh_male_yunzhou_jupiter_bigtts"

const (
	defaultAppKey        = "PlgvMymc7f3tQnJ6" // fixed protocol value
	defaultBotName       = "doubao"
	defaultSystemRole    = "You use a lively female voice, have an outgoing personality, and love life."
	defaultSpeakingStyle = "Your speaking style is concise and clear, with a moderate pace and natural intonation."
	defaultAuditResponse = "Support customized security audit response scripts."

	defaultEndSmoothWindowMS = 1500
	defaultTTSChannel        = 1
	defaultTTSSampleRate     = 24000
	defaultTTSFormat         = "pcm_s16le"
	defaultRecvTimeout       = 120
	defaultInputMode         = "audio"

	handshakeTimeout = 10 * time.Second
)

// Client is a live connection to the dialog gateway. One Client owns one
// WebSocket connection and one dialog session.
type Client struct {
	cfg     Config
	conn    net.Conn
	mu      sync.Mutex
	done    chan struct{}
	sendCh  chan []byte
	handler Handler

	sessionID string
	logID     string // gateway trace id from the handshake response
}

// Connect dials the gateway, performs the StartConnection and StartSession
// handshake, and starts the receive loop. The handler is invoked for every
// decoded server event until the connection closes.
func Connect(ctx context.Context, cfg Config, handler Handler) (*Client, error) {
	c := &Client{
		cfg:     cfg.withDefaults(),
		done:    make(chan struct{}),
		sendCh:  make(chan []byte, 256),
		handler: handler,
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	hdr := http.Header{
		"X-Api-App-ID":      []string{c.cfg.AppID},
		"X-Api-Access-Key":  []string{c.cfg.AccessKey},
		"X-Api-Resource-Id": []string{c.cfg.ResourceID},
		"X-Api-App-Key":     []string{c.cfg.AppKey},
		"X-Api-Connect-Id":  []string{c.cfg.ConnectID},
	}
	d := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(hdr),
		OnHeader: func(key, value []byte) error {
			if string(key) == "X-Tt-Logid" {
				c.logID = string(value)
			}
			return nil
		},
	}
	conn, _, _, err := d.Dial(ctx, c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.conn = conn

	// StartConnection
	startConn := frame.Request{
		Header:  frame.DefaultHeader(),
		Event:   EventStartConnection,
		Payload: frame.Compress([]byte("{}")),
	}
	if err := wsutil.WriteClientBinary(conn, startConn.Encode()); err != nil {
		conn.Close()
		return fmt.Errorf("send start connection: %w", err)
	}
	if _, err := c.awaitResponse("start connection"); err != nil {
		conn.Close()
		return err
	}

	// StartSession
	c.sessionID = uuid.NewString()
	payload, err := json.Marshal(c.startSessionRequest())
	if err != nil {
		conn.Close()
		return fmt.Errorf("marshal start session: %w", err)
	}
	startSess := frame.Request{
		Header:    frame.DefaultHeader(),
		Event:     EventStartSession,
		SessionID: c.sessionID,
		Payload:   frame.Compress(payload),
	}
	if err := wsutil.WriteClientBinary(conn, startSess.Encode()); err != nil {
		conn.Close()
		return fmt.Errorf("send start session: %w", err)
	}
	if _, err := c.awaitResponse("start session"); err != nil {
		conn.Close()
		return err
	}

	slog.Info("connected to dialog gateway",
		"endpoint", c.cfg.Endpoint, "session", c.sessionID, "logid", c.logID)
	return nil
}

// awaitResponse reads one handshake reply and rejects error frames and
// failed lifecycle events.
func (c *Client) awaitResponse(stage string) (*frame.Response, error) {
	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	data, err := wsutil.ReadServerBinary(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", stage, err)
	}
	resp, err := frame.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", stage, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: empty response", stage)
	}
	if resp.Type == frame.ServerErrorResponse {
		return nil, &ServerError{Code: resp.Code, Message: string(resp.Payload)}
	}
	if resp.Event != nil && (*resp.Event == EventConnectionFailed || *resp.Event == EventSessionFailed) {
		return nil, fmt.Errorf("%s failed: %s", stage, resp.Payload)
	}
	slog.Debug("handshake response", "stage", stage, "type", resp.Type, "payload", resp.PayloadMsg)
	return resp, nil
}

// startSessionRequest builds the session config payload from Config.
func (c *Client) startSessionRequest() wire.StartSessionRequest {
	return wire.StartSessionRequest{
		ASR: wire.ASRConfig{
			Extra: wire.ASRExtra{EndSmoothWindowMS: defaultEndSmoothWindowMS},
		},
		TTS: wire.TTSConfig{
			Speaker: c.cfg.Speaker,
			AudioConfig: wire.AudioConfig{
				Channel:    defaultTTSChannel,
				Format:     defaultTTSFormat,
				SampleRate: defaultTTSSampleRate,
			},
		},
		Dialog: wire.DialogConfig{
			BotName:       c.cfg.BotName,
			SystemRole:    c.cfg.SystemRole,
			SpeakingStyle: c.cfg.SpeakingStyle,
			Extra: wire.DialogExtra{
				StrictAudit:   false,
				AuditResponse: defaultAuditResponse,
				RecvTimeout:   c.cfg.RecvTimeout,
				InputMod:      c.cfg.InputMode,
			},
		},
	}
}

// SessionID returns the id of the negotiated dialog session.
func (c *Client) SessionID() string { return c.sessionID }

// LogID returns the gateway trace id from the WebSocket handshake.
func (c *Client) LogID() string { return c.logID }

// SendAudio streams one chunk of input audio to the model. The gateway runs
// voice activity detection server-side; there is no explicit end-of-utterance
// call.
func (c *Client) SendAudio(ctx context.Context, audio []byte) error {
	h := frame.DefaultHeader()
	h.Type = frame.ClientAudioOnlyRequest
	h.Serialization = frame.NoSerialization
	req := frame.Request{
		Header:    h,
		Event:     EventTaskRequest,
		SessionID: c.sessionID,
		Payload:   frame.Compress(audio),
	}
	return c.send(ctx, req.Encode())
}

// FinishSession asks the gateway to end the current dialog session. The
// connection stays open; the gateway answers with a SessionFinished event.
func (c *Client) FinishSession(ctx context.Context) error {
	req := frame.Request{
		Header:    frame.DefaultHeader(),
		Event:     EventFinishSession,
		SessionID: c.sessionID,
		Payload:   frame.Compress([]byte("{}")),
	}
	return c.send(ctx, req.Encode())
}

// Close sends a best-effort FinishConnection and tears down the WebSocket.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)

	finish := frame.Request{
		Header:  frame.DefaultHeader(),
		Event:   EventFinishConnection,
		Payload: frame.Compress([]byte("{}")),
	}
	c.mu.Lock()
	wsutil.WriteClientBinary(c.conn, finish.Encode())
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return errors.New("client closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnAudio subscribes to synthesized audio chunks. Wraps the generic handler.
func (c *Client) OnAudio(fn func(pcm []byte)) {
	c.handler = chainHandler(c.handler, func(m ServerMessage) {
		if len(m.Audio) > 0 {
			fn(m.Audio)
		}
	})
}

// OnTranscript subscribes to text: recognized user speech arrives with
// input=true, model reply chunks with input=false.
func (c *Client) OnTranscript(fn func(input bool, t Transcription)) {
	c.handler = chainHandler(c.handler, func(m ServerMessage) {
		if m.InputTranscription != nil {
			fn(true, *m.InputTranscription)
		}
		if m.OutputTranscription != nil {
			fn(false, *m.OutputTranscription)
		}
	})
}

// --- Internal ---

func (c *Client) readLoop() {
	for {
		data, err := wsutil.ReadServerBinary(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("read error, disconnecting", "error", err)
				c.Close()
			}
			return
		}

		resp, err := frame.Decode(data)
		if err != nil {
			slog.Debug("bad frame", "error", err)
			continue
		}
		if resp == nil {
			continue
		}

		msg := convert(resp)
		if msg.Err != nil {
			slog.Warn("server error frame", "code", msg.Err.Code, "message", msg.Err.Message)
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.mu.Lock()
			err := wsutil.WriteClientBinary(c.conn, data)
			c.mu.Unlock()
			if err != nil {
				slog.Warn("write error", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// convert maps one decoded frame onto a normalized ServerMessage. Events
// with no structured mapping pass through with Event and SessionID only.
func convert(r *frame.Response) ServerMessage {
	m := ServerMessage{SessionID: string(r.RawSessionID)}

	if r.Type == frame.ServerErrorResponse {
		m.Err = &ServerError{Code: r.Code, Message: string(r.Payload)}
		return m
	}
	if r.Event == nil {
		return m
	}
	m.Event = *r.Event

	switch *r.Event {
	case EventASRInfo:
		// First recognized speech in the input stream: the user is talking,
		// stop playing the current reply.
		m.Interrupted = true
	case EventASRResponse:
		var asr wire.ASRResponse
		if err := json.Unmarshal(r.Payload, &asr); err == nil && len(asr.Results) > 0 {
			m.InputTranscription = &Transcription{Text: asr.Results[0].Text, Finished: true}
		}
	case EventChatResponse:
		var chat wire.ChatResponse
		if err := json.Unmarshal(r.Payload, &chat); err == nil {
			m.OutputTranscription = &Transcription{Text: chat.Content}
		}
	case EventChatEnded:
		m.OutputTranscription = &Transcription{Finished: true}
	case EventTTSResponse:
		m.Audio = r.Payload
	case EventTTSEnded:
		m.TurnComplete = true
	case EventUsageResponse:
		var usage wire.UsageResponse
		if err := json.Unmarshal(r.Payload, &usage); err == nil {
			m.Usage = &Usage{TotalTokens: usage.Total(), CachedTokens: usage.CachedTotal()}
		}
	case EventTTSSentenceStart, EventTTSSentenceEnd, EventASREnded:
		slog.Debug("lifecycle event", "event", *r.Event, "session", m.SessionID)
	}
	return m
}

func chainHandler(existing, additional Handler) Handler {
	return func(m ServerMessage) {
		if existing != nil {
			existing(m)
		}
		additional(m)
	}
}

// withDefaults fills zero Config fields with the documented defaults.
func (cfg Config) withDefaults() Config {
	if cfg.ResourceID == "" {
		cfg.ResourceID = DefaultResourceID
	}
	if cfg.AppKey == "" {
		cfg.AppKey = defaultAppKey
	}
	if cfg.ConnectID == "" {
		cfg.ConnectID = uuid.NewString()
	}
	if cfg.Speaker == "" {
		cfg.Speaker = DefaultSpeaker
	}
	if cfg.BotName == "" {
		cfg.BotName = defaultBotName
	}
	if cfg.SystemRole == "" {
		cfg.SystemRole = defaultSystemRole
	}
	if cfg.SpeakingStyle == "" {
		cfg.SpeakingStyle = defaultSpeakingStyle
	}
	if cfg.InputMode == "" {
		cfg.InputMode = defaultInputMode
	}
	if cfg.RecvTimeout == 0 {
		cfg.RecvTimeout = defaultRecvTimeout
	}
	return cfg
}
