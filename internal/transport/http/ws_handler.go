package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
	"github.com/Brain-Board-Development/BrainBoard/internal/domain"
)

// WSHandler serves the two live channels: the host control socket and the
// player socket. Both stream session snapshots from the coordinator's
// subscription feed; only the read loops differ.
type WSHandler struct {
	coord    *app.Coordinator
	upgrader websocket.Upgrader
}

func NewWSHandler(coord *app.Coordinator) *WSHandler {
	return &WSHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	OptionID      string `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinedPayload struct {
	Player  domain.Player `json:"player"`
	Session sessionView   `json:"session"`
}

// ServePlay upgrades a player connection: resolve the PIN, join (or rejoin),
// then stream snapshots while accepting answer submissions.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	name := r.URL.Query().Get("name")
	playerID := r.URL.Query().Get("playerId")
	if pin == "" {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	resolved, err := h.coord.ResolvePIN(ctx, pin)
	if err != nil && !(playerID != "" && errors.Is(err, domain.ErrNotJoinable)) {
		writeWSError(conn, err)
		return
	}

	var player domain.Player
	var sess domain.Session
	if playerID != "" {
		player, sess, err = h.coord.Rejoin(ctx, resolved.ID, playerID)
	} else {
		player, sess, err = h.coord.Join(ctx, resolved.ID, name, r.RemoteAddr)
	}
	if err != nil {
		writeWSError(conn, err)
		return
	}

	updates, cancel, err := h.coord.Subscribe(ctx, sess.ID)
	if err != nil {
		writeWSError(conn, err)
		return
	}
	defer cancel()

	send, done := h.startPumps(conn, updates)
	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{Player: player, Session: viewOf(sess)}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("BAD_PAYLOAD", "invalid answer payload")
				continue
			}
			result, err := h.coord.SubmitAnswer(ctx, sess.ID, player.ID, payload.QuestionIndex, payload.OptionID)
			if err != nil {
				rej, msg := classify(err)
				send <- errorMessage(rej.code, msg)
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- errorMessage("UNSUPPORTED", "unsupported message type")
		}
	}
	done()
}

// ServeHost upgrades the host control connection. Lifecycle transitions come
// in as messages; the resulting snapshots flow back through the subscription.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	hostID := r.URL.Query().Get("hostId")
	if sessionID == "" || hostID == "" {
		http.Error(w, "missing sessionId or hostId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sess, err := h.coord.GetSession(ctx, sessionID)
	if err != nil {
		writeWSError(conn, err)
		return
	}
	if sess.HostID != hostID {
		writeWSError(conn, domain.ErrNotHost)
		return
	}

	updates, cancel, err := h.coord.Subscribe(ctx, sessionID)
	if err != nil {
		writeWSError(conn, err)
		return
	}
	defer cancel()

	send, done := h.startPumps(conn, updates)
	send <- outboundMessage[any]{Type: "state", Payload: viewOf(sess)}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var opErr error
		switch inbound.Type {
		case "start":
			_, opErr = h.coord.Start(ctx, sessionID, hostID)
		case "advance":
			_, opErr = h.coord.Advance(ctx, sessionID, hostID)
		case "end":
			_, opErr = h.coord.End(ctx, sessionID, hostID)
		case "abandon":
			_, opErr = h.coord.Abandon(ctx, sessionID, hostID)
		default:
			send <- errorMessage("UNSUPPORTED", "unsupported message type")
			continue
		}
		if opErr != nil {
			rej, msg := classify(opErr)
			send <- errorMessage(rej.code, msg)
		}
	}
	done()
}

// startPumps runs the writer goroutine and the snapshot forwarder. The writer
// is the only goroutine touching the connection, so concurrent snapshot and
// reply writes never interleave. done tears both down in order.
func (h *WSHandler) startPumps(conn *websocket.Conn, updates <-chan domain.Session) (chan<- outboundMessage[any], func()) {
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: viewOf(update)}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	done := func() {
		close(closeSignals)
		<-updatesDone
		close(send)
		<-writerDone
	}
	return send, done
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func writeWSError(conn *websocket.Conn, err error) {
	rej, msg := classify(err)
	_ = conn.WriteJSON(errorMessage(rej.code, msg))
}
