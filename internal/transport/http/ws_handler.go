package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DuelHandler runs the 1-vs-1 duel over a websocket. Each connection is one
// participant; the room document is followed through a store subscription and
// every observed change is pushed to the client.
type DuelHandler struct {
	duels    *app.DuelCoordinator
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewDuelHandler(duels *app.DuelCoordinator, log *zap.SugaredLogger) *DuelHandler {
	return &DuelHandler{
		duels: duels,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type createPayload struct {
	QuizID string `json:"quizId"`
}

type joinPayload struct {
	Code string `json:"code"`
}

type answerPayload struct {
	AnswerIndex int `json:"answerIndex"`
}

// roomView is the per-change snapshot pushed to clients. Questions travel
// once, in the created/joined payload, not on every update.
type roomView struct {
	Code          string            `json:"code"`
	Status        domain.RoomStatus `json:"status"`
	HostName      string            `json:"hostName"`
	GuestName     string            `json:"guestName,omitempty"`
	HostScore     int               `json:"hostScore"`
	GuestScore    int               `json:"guestScore"`
	HostFinished  bool              `json:"hostFinished"`
	GuestFinished bool              `json:"guestFinished"`
}

type enterPayload struct {
	Room      roomView          `json:"room"`
	IsHost    bool              `json:"isHost"`
	Questions []domain.Question `json:"questions"`
}

func toRoomView(room domain.Room) roomView {
	return roomView{
		Code:          room.Code,
		Status:        room.Status,
		HostName:      room.HostName,
		GuestName:     room.GuestName,
		HostScore:     room.HostScore,
		GuestScore:    room.GuestScore,
		HostFinished:  room.HostFinished,
		GuestFinished: room.GuestFinished,
	}
}

// ServeWS upgrades the connection and drives one duel participant.
func (h *DuelHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	name := r.URL.Query().Get("name")
	if name == "" {
		name = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debugw("ws write error", "error", err)
				return
			}
		}
	}()

	var (
		view          *app.DuelView
		cancelUpdates func()
		updatesDone   chan struct{}
		localFinished atomic.Bool
	)
	defer func() {
		close(closeSignals)
		if cancelUpdates != nil {
			cancelUpdates()
		}
		if updatesDone != nil {
			<-updatesDone
		}
		close(send)
		<-writerDone
	}()

	// forward pumps room events to the client until the subscription ends.
	forward := func(events <-chan app.RoomEvent) chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					if ev.Deleted {
						h.trySend(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "room was deleted"}})
						return
					}
					if !h.trySend(send, closeSignals, outboundMessage[any]{Type: "room", Payload: toRoomView(ev.Room)}) {
						return
					}
					if localFinished.Load() {
						if !h.trySend(send, closeSignals, outboundMessage[any]{Type: "verdict", Payload: app.Verdict(ev.Room, view.IsHost)}) {
							return
						}
					}
				case <-closeSignals:
					return
				}
			}
		}()
		return done
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "create":
			if view != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "already in a room"}}
				continue
			}
			var payload createPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid create payload"}}
				continue
			}
			room, err := h.duels.CreateRoom(r.Context(), userID, name, payload.QuizID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			view = app.NewDuelView(room, true)
			events, cancel, err := h.duels.Subscribe(r.Context(), room.Code)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				return
			}
			cancelUpdates = cancel
			updatesDone = forward(events)
			send <- outboundMessage[any]{Type: "created", Payload: enterPayload{Room: toRoomView(room), IsHost: true, Questions: room.Questions}}

		case "join":
			if view != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "already in a room"}}
				continue
			}
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid join payload"}}
				continue
			}
			room, err := h.duels.JoinRoom(r.Context(), payload.Code, userID, name)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				if isJoinRejection(err) {
					continue
				}
				return
			}
			view = app.NewDuelView(room, false)
			events, cancel, err := h.duels.Subscribe(r.Context(), room.Code)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				return
			}
			cancelUpdates = cancel
			updatesDone = forward(events)
			send <- outboundMessage[any]{Type: "joined", Payload: enterPayload{Room: toRoomView(room), IsHost: false, Questions: room.Questions}}

		case "answer":
			if view == nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "not in a room"}}
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			result, err := h.duels.Answer(r.Context(), view, payload.AnswerIndex)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			if result.Finished {
				localFinished.Store(true)
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}

		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}
}

func (h *DuelHandler) trySend(send chan outboundMessage[any], closeSignals chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-closeSignals:
		return false
	}
}

func isJoinRejection(err error) bool {
	return errors.Is(err, domain.ErrRoomNotFound) ||
		errors.Is(err, domain.ErrRoomNotWaiting) ||
		errors.Is(err, domain.ErrRoomFull)
}
