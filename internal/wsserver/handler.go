package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicebridge/gateway/internal/metrics"
	"github.com/voicebridge/gateway/internal/provider"
	"github.com/voicebridge/gateway/internal/session"
	"github.com/voicebridge/gateway/internal/turn"
)

// ConfigFrameTimeout is how long a freshly-accepted connection has to
// send its ConfigFrame before the handler closes it with
// CloseCodeConfigTimeout.
const ConfigFrameTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig wires everything a Handler needs to serve sessions.
type HandlerConfig struct {
	ASR     *provider.ASRAdapter
	LLM     *provider.LLMAdapter
	TTS     *provider.TTSAdapter
	Store   *session.Store
	Metrics *metrics.Recorder
	Log     *slog.Logger
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// runs the protocol state machine per spec §4.4, generalizing the
// teacher's ws/handler.go (mode-dispatched talk/snippet/text frames)
// into the config/control/audio frame shape this spec names.
type Handler struct {
	cfg HandlerConfig
	log *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{cfg: cfg, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.WSConnections.Inc()
		h.cfg.Metrics.ActiveStreams.Inc()
		defer h.cfg.Metrics.ActiveStreams.Dec()
	}
	h.runSession(conn)
}

// eventSender serializes writes to the connection: audio is sent as
// binary frames, everything else as JSON text frames, matching the
// teacher's newEventSender mutex-guarded writer.
type eventSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *eventSender) sendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *eventSender) sendBinary(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	defer conn.Close()

	sender := &eventSender{conn: conn}

	cfgFrame, err := h.readConfigFrame(conn)
	if err != nil {
		h.log.Warn("config frame not received in time", "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodeConfigTimeout, "config timeout"),
			time.Now().Add(time.Second))
		return
	}

	if err := session.ValidateLanguage(cfgFrame.LanguageCode); err != nil {
		h.log.Warn("rejecting session with unsupported language", "error", err)
		sender.sendJSON(ServerFrame{Type: ServerFrameError, ErrorKind: provider.ErrKindUnsupportedLanguage.String(), ErrorMessage: err.Error()})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodeInternalError, "unsupported language"),
			time.Now().Add(time.Second))
		return
	}

	sess := &session.Session{
		ID:           uuid.NewString(),
		Language:     cfgFrame.LanguageCode,
		State:        session.StateInitialized,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.cfg.Store.Create(ctx, sess); err != nil {
		h.log.Error("failed to create session", "error", err)
		sender.sendJSON(ServerFrame{Type: ServerFrameError, ErrorKind: provider.ErrKindInternal.String(), ErrorMessage: "internal error"})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodeInternalError, "internal error"),
			time.Now().Add(time.Second))
		return
	}
	defer h.cfg.Store.ScheduleGraceDelete(sess.ID)

	sender.sendJSON(ServerFrame{Type: ServerFrameSessionCreated, SessionID: sess.ID, Language: sess.Language})

	pipeline := turn.New(turn.Config{
		ASR:          h.cfg.ASR,
		LLM:          h.cfg.LLM,
		TTS:          h.cfg.TTS,
		Metrics:      h.cfg.Metrics,
		SessionID:    sess.ID,
		LanguageCode: cfgFrame.LanguageCode,
		SampleRateHz: cfgFrame.SampleRateHz,
		Log:          h.log,
	})

	h.processMessages(ctx, conn, sess, pipeline, sender)
}

func (h *Handler) readConfigFrame(conn *websocket.Conn) (*ConfigFrame, error) {
	conn.SetReadDeadline(time.Now().Add(ConfigFrameTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read config frame: %w", err)
	}
	if msgType != websocket.TextMessage {
		return nil, errors.New("first frame must be a text config frame")
	}
	var cfg ConfigFrame
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config frame: %w", err)
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 16000
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &cfg, nil
}

// processMessages is the main read loop: binary frames feed the active
// turn's audio channel, text frames carry control actions.
func (h *Handler) processMessages(ctx context.Context, conn *websocket.Conn, sess *session.Session, pipeline *turn.Pipeline, sender *eventSender) {
	var audioCh chan []byte
	var turnDone chan error

	onEvent := func(ev turn.Event) {
		switch ev.Type {
		case "tts_audio":
			sender.sendBinary(ev.Audio)
		case "status":
			sender.sendJSON(ServerFrame{Type: ServerFrameStatus, State: ev.State, Stage: ev.Stage})
		default:
			sender.sendJSON(ServerFrame{
				Type:    ev.Type,
				Text:    ev.Text,
				ASRMs:   ev.ASRMs,
				LLMMs:   ev.LLMMs,
				TTSMs:   ev.TTSMs,
				TotalMs: ev.TotalMs,
			})
		}
	}

	startTurn := func() {
		audioCh = make(chan []byte, 32)
		turnDone = make(chan error, 1)
		go func() {
			turnDone <- pipeline.RunTurn(ctx, sess, audioCh, onEvent)
		}()
	}
	startTurn()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if audioCh != nil {
				close(audioCh)
				audioCh = nil
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if audioCh == nil {
				startTurn()
			}
			select {
			case audioCh <- data:
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			var ctrl ControlFrame
			if err := json.Unmarshal(data, &ctrl); err != nil {
				continue
			}
			h.handleControlFrame(ctx, ctrl, sess, sender, &audioCh)
		}

		select {
		case err := <-turnDone:
			if err != nil {
				h.log.Warn("turn failed", "error", err, "session_id", sess.ID)
				kind := provider.ErrKindInternal
				if pe, ok := provider.AsProviderError(err); ok {
					kind = pe.Kind
				}
				sender.sendJSON(ServerFrame{Type: ServerFrameError, ErrorKind: kind.String(), ErrorMessage: "processing error"})
			}
			h.cfg.Store.Touch(ctx, sess)
			audioCh = nil
		default:
		}
	}
}

func (h *Handler) handleControlFrame(ctx context.Context, ctrl ControlFrame, sess *session.Session, sender *eventSender, audioCh *chan []byte) {
	switch ctrl.Type {
	case "ping":
		sender.sendJSON(ServerFrame{Type: ServerFramePong})
	case "end_turn":
		if *audioCh != nil {
			close(*audioCh)
			*audioCh = nil
		}
	case "change_language":
		if ctrl.LanguageCode != "" {
			if err := session.ValidateLanguage(ctrl.LanguageCode); err != nil {
				sender.sendJSON(ServerFrame{Type: ServerFrameError, ErrorKind: provider.ErrKindUnsupportedLanguage.String(), ErrorMessage: err.Error()})
				return
			}
			sess.Language = ctrl.LanguageCode
			h.cfg.Store.Touch(ctx, sess)
		}
	case "clear_history":
		sess.History = nil
		h.cfg.Store.Touch(ctx, sess)
		sender.sendJSON(ServerFrame{Type: ServerFrameHistoryCleared, SessionID: sess.ID})
	case "get_state":
		sender.sendJSON(StateSnapshotFrame{
			Type:      ServerFrameState,
			SessionID: sess.ID,
			Language:  sess.Language,
			State:     string(sess.State),
			History:   sess.History,
		})
	default:
		// text_input and unrecognized control frames: ignored here;
		// a text-only turn would be wired through a dedicated pipeline
		// entry point mirroring ProcessTextMessage in future work.
	}
}
