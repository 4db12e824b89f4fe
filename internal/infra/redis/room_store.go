package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"bitquiz-service/internal/app"
	"bitquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RoomStore keeps duel rooms as Redis hashes and pushes change notifications
// over pub/sub. Score updates use HINCRBY and each party only ever writes its
// own fields, so concurrent play needs no locking.
//
// Layout:
//
//	HSET duel:room:{code} hostId hostName guestId guestName status
//	                      questions hostScore guestScore
//	                      hostFinished guestFinished createdAt
//	PUBLISH duel:room:{code}:events <reason>
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomStore builds the store. ttl bounds how long abandoned rooms linger;
// every mutation refreshes it.
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RoomStore{client: client, ttl: ttl}
}

// joinScript validates and applies the guest join in one atomic step.
var joinScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'missing'
end
if redis.call('HGET', KEYS[1], 'status') ~= 'waiting' then
  return 'started'
end
local guest = redis.call('HGET', KEYS[1], 'guestId')
if guest and guest ~= '' then
  return 'full'
end
redis.call('HSET', KEYS[1], 'guestId', ARGV[1], 'guestName', ARGV[2], 'status', 'playing')
return 'ok'
`)

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	key := roomKey(room.Code)
	// The code field doubles as the create-if-absent guard.
	taken, err := s.client.HSetNX(ctx, key, "code", room.Code).Result()
	if err != nil {
		return err
	}
	if !taken {
		return domain.ErrRoomExists
	}

	questions, err := json.Marshal(room.Questions)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"hostId", room.HostID,
		"hostName", room.HostName,
		"guestId", "",
		"guestName", "",
		"status", string(room.Status),
		"questions", string(questions),
		"hostScore", 0,
		"guestScore", 0,
		"hostFinished", 0,
		"guestFinished", 0,
		"createdAt", room.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, room.Code, "created")
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(code)).Result()
	if err != nil {
		return domain.Room{}, err
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return roomFromFields(code, fields)
}

func (s *RoomStore) Join(ctx context.Context, code, guestID, guestName string) (domain.Room, error) {
	res, err := joinScript.Run(ctx, s.client, []string{roomKey(code)}, guestID, guestName).Text()
	if err != nil {
		return domain.Room{}, err
	}
	switch res {
	case "missing":
		return domain.Room{}, domain.ErrRoomNotFound
	case "started":
		return domain.Room{}, domain.ErrRoomNotWaiting
	case "full":
		return domain.Room{}, domain.ErrRoomFull
	}
	s.client.Expire(ctx, roomKey(code), s.ttl)
	if err := s.publish(ctx, code, "joined"); err != nil {
		return domain.Room{}, err
	}
	return s.Get(ctx, code)
}

func (s *RoomStore) IncrementScore(ctx context.Context, code string, host bool) error {
	field := "guestScore"
	if host {
		field = "hostScore"
	}
	if err := s.client.HIncrBy(ctx, roomKey(code), field, 1).Err(); err != nil {
		return err
	}
	return s.publish(ctx, code, "score")
}

func (s *RoomStore) SetFinished(ctx context.Context, code string, host bool) error {
	field := "guestFinished"
	if host {
		field = "hostFinished"
	}
	if err := s.client.HSet(ctx, roomKey(code), field, 1).Err(); err != nil {
		return err
	}
	return s.publish(ctx, code, "finished")
}

// Delete removes a room and tells subscribers, modelling external cleanup.
func (s *RoomStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, roomKey(code)).Err(); err != nil {
		return err
	}
	return s.publish(ctx, code, "deleted")
}

// Subscribe re-reads the room hash on every published change. The initial
// snapshot is emitted before any notification. A subscriber that stops
// reading loses its oldest pending events, never the newest.
func (s *RoomStore) Subscribe(ctx context.Context, code string) (<-chan app.RoomEvent, func(), error) {
	initial, err := s.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, eventsKey(code))
	out := make(chan app.RoomEvent, 8)
	out <- app.RoomEvent{Room: initial}

	go func() {
		defer close(out)
		for range pubsub.Channel() {
			room, err := s.Get(ctx, code)
			if err != nil {
				deliver(out, app.RoomEvent{Deleted: true})
				return
			}
			deliver(out, app.RoomEvent{Room: room})
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
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

func (s *RoomStore) publish(ctx context.Context, code, reason string) error {
	return s.client.Publish(ctx, eventsKey(code), reason).Err()
}

func roomKey(code string) string   { return "duel:room:" + code }
func eventsKey(code string) string { return "duel:room:" + code + ":events" }

func roomFromFields(code string, fields map[string]string) (domain.Room, error) {
	room := domain.Room{
		Code:      code,
		HostID:    fields["hostId"],
		HostName:  fields["hostName"],
		GuestID:   fields["guestId"],
		GuestName: fields["guestName"],
		Status:    domain.RoomStatus(fields["status"]),
	}
	if raw := fields["questions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &room.Questions); err != nil {
			return domain.Room{}, err
		}
	}
	room.HostScore, _ = strconv.Atoi(fields["hostScore"])
	room.GuestScore, _ = strconv.Atoi(fields["guestScore"])
	room.HostFinished = fields["hostFinished"] == "1"
	room.GuestFinished = fields["guestFinished"] == "1"
	if raw := fields["createdAt"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			room.CreatedAt = t
		}
	}
	return room, nil
}
