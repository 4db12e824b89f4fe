package memory

import (
	"context"
	"sync"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/domain"
)

// RoomStore is an in-process duel room store with channel-based push
// subscriptions, used for single-instance deployments and tests.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

type roomState struct {
	room        domain.Room
	subscribers map[chan app.RoomEvent]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomState)}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.Code] = &roomState{
		room:        room,
		subscribers: make(map[chan app.RoomEvent]struct{}),
	}
	return nil
}

func (s *RoomStore) Get(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return state.room, nil
}

func (s *RoomStore) Join(_ context.Context, code, guestID, guestName string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if state.room.Status != domain.RoomWaiting {
		return domain.Room{}, domain.ErrRoomNotWaiting
	}
	if state.room.GuestID != "" {
		return domain.Room{}, domain.ErrRoomFull
	}
	state.room.GuestID = guestID
	state.room.GuestName = guestName
	state.room.Status = domain.RoomPlaying
	s.broadcastLocked(state)
	return state.room, nil
}

func (s *RoomStore) IncrementScore(_ context.Context, code string, host bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if host {
		state.room.HostScore++
	} else {
		state.room.GuestScore++
	}
	s.broadcastLocked(state)
	return nil
}

func (s *RoomStore) SetFinished(_ context.Context, code string, host bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if host {
		state.room.HostFinished = true
	} else {
		state.room.GuestFinished = true
	}
	s.broadcastLocked(state)
	return nil
}

// Delete removes a room and notifies subscribers; the app never calls this on
// its own, it models external cleanup.
func (s *RoomStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for ch := range state.subscribers {
		deliver(ch, app.RoomEvent{Deleted: true})
		close(ch)
	}
	delete(s.rooms, code)
	return nil
}

func (s *RoomStore) Subscribe(_ context.Context, code string) (<-chan app.RoomEvent, func(), error) {
	s.mu.Lock()
	state, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	ch := make(chan app.RoomEvent, 8)
	state.subscribers[ch] = struct{}{}
	// The initial snapshot goes out under the lock so a concurrent Delete
	// cannot close the channel before it is sent.
	deliver(ch, app.RoomEvent{Room: state.room})
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if st, ok := s.rooms[code]; ok {
			if _, subscribed := st.subscribers[ch]; subscribed {
				delete(st.subscribers, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (s *RoomStore) broadcastLocked(state *roomState) {
	snapshot := state.room
	for ch := range state.subscribers {
		deliver(ch, app.RoomEvent{Room: snapshot})
	}
}

// deliver drops the oldest pending event rather than blocking on a slow
// subscriber.
func deliver(ch chan app.RoomEvent, ev app.RoomEvent) {
	select {
	case ch <- ev:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}
