package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"bitquiz-service/internal/catalog"
	"bitquiz-service/internal/domain"
	"go.uber.org/zap"
)

// RoomEvent is one observation of the shared room document. Deleted marks the
// room disappearing, which is terminal for both parties.
type RoomEvent struct {
	Room    domain.Room
	Deleted bool
}

// RoomStore is the shared duel document store. Mutations must keep the
// each-party-writes-own-fields discipline: IncrementScore and SetFinished
// touch only the fields named by the host flag.
type RoomStore interface {
	// Create writes a new room if the code is free, ErrRoomExists otherwise.
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, code string) (domain.Room, error)
	// Join atomically validates the waiting/no-guest preconditions, sets the
	// guest fields and flips status to playing.
	Join(ctx context.Context, code, guestID, guestName string) (domain.Room, error)
	IncrementScore(ctx context.Context, code string, host bool) error
	SetFinished(ctx context.Context, code string, host bool) error
	// Subscribe yields a room snapshot per observed change, starting with the
	// current state. The cancel func releases the subscription.
	Subscribe(ctx context.Context, code string) (<-chan RoomEvent, func(), error)
}

// DuelView is the per-client slice of duel state. The question index is local
// to each party and never synchronized through the room document.
type DuelView struct {
	RoomCode  string
	IsHost    bool
	Index     int
	questions []domain.Question
}

// NewDuelView derives a client view from a room snapshot.
func NewDuelView(room domain.Room, isHost bool) *DuelView {
	return &DuelView{RoomCode: room.Code, IsHost: isHost, questions: room.Questions}
}

// Question returns the question at the local index, or false once exhausted.
func (v *DuelView) Question() (domain.Question, bool) {
	if v.Index >= len(v.questions) {
		return domain.Question{}, false
	}
	return v.questions[v.Index], true
}

// DuelAnswerResult reports one duel answer.
type DuelAnswerResult struct {
	Correct  bool `json:"correct"`
	Finished bool `json:"finished"`
	Index    int  `json:"index"`
}

// DuelCoordinator runs the two-party quiz race against the shared room store.
type DuelCoordinator struct {
	rooms     RoomStore
	content   ContentResolver
	catalog   *catalog.Catalog
	questions int
	log       *zap.SugaredLogger

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

const (
	defaultDuelQuestions = 10
	createRoomAttempts   = 5
)

func NewDuelCoordinator(rooms RoomStore, content ContentResolver, cat *catalog.Catalog, questions int, log *zap.SugaredLogger) *DuelCoordinator {
	if questions <= 0 {
		questions = defaultDuelQuestions
	}
	return &DuelCoordinator{
		rooms:     rooms,
		content:   content,
		catalog:   cat,
		questions: questions,
		log:       log,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// CreateRoom fetches the quiz content, draws the duel question list and
// writes a fresh waiting room under a 4-digit code. Codes are re-rolled on
// collision a bounded number of times.
func (c *DuelCoordinator) CreateRoom(ctx context.Context, hostID, hostName, quizID string) (domain.Room, error) {
	def, err := c.catalog.Get(quizID)
	if err != nil {
		return domain.Room{}, err
	}
	// Duels always need live content; there is no offline fallback here.
	set, err := c.content.Resolve(ctx, def.SourceURL, false)
	if err != nil {
		return domain.Room{}, err
	}

	c.rndMu.Lock()
	drawn := DrawQuestions(c.rnd, set, c.questions)
	c.rndMu.Unlock()

	for attempt := 0; attempt < createRoomAttempts; attempt++ {
		room := domain.Room{
			Code:      c.newCode(),
			HostID:    hostID,
			HostName:  hostName,
			Status:    domain.RoomWaiting,
			Questions: drawn,
			CreatedAt: c.now(),
		}
		err := c.rooms.Create(ctx, room)
		if errors.Is(err, domain.ErrRoomExists) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room: %w", domain.ErrRoomExists)
}

// JoinRoom joins an existing waiting room as guest.
func (c *DuelCoordinator) JoinRoom(ctx context.Context, code, guestID, guestName string) (domain.Room, error) {
	return c.rooms.Join(ctx, code, guestID, guestName)
}

// Answer scores one answer for the given party. A correct answer atomically
// increments that party's score field only; the last question sets that
// party's finished flag.
func (c *DuelCoordinator) Answer(ctx context.Context, view *DuelView, answerIndex int) (DuelAnswerResult, error) {
	q, ok := view.Question()
	if !ok {
		return DuelAnswerResult{}, domain.ErrSessionFinished
	}

	correct := q.CorrectAnswerIndex != nil && *q.CorrectAnswerIndex == answerIndex
	if correct {
		if err := c.rooms.IncrementScore(ctx, view.RoomCode, view.IsHost); err != nil {
			return DuelAnswerResult{}, err
		}
	}

	view.Index++
	res := DuelAnswerResult{Correct: correct, Index: view.Index}
	if view.Index >= len(view.questions) {
		res.Finished = true
		if err := c.rooms.SetFinished(ctx, view.RoomCode, view.IsHost); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Subscribe follows the shared room document.
func (c *DuelCoordinator) Subscribe(ctx context.Context, code string) (<-chan RoomEvent, func(), error) {
	return c.rooms.Subscribe(ctx, code)
}

// Verdict compares own score against the opponent's observed score. The
// outcome is provisional until both finished flags are set; clients should
// treat Final=false as an in-progress scoreboard, not a result.
func Verdict(room domain.Room, isHost bool) domain.DuelVerdict {
	mine := room.ScoreOf(isHost)
	theirs := room.ScoreOf(!isHost)
	v := domain.DuelVerdict{
		MyScore:       mine,
		OpponentScore: theirs,
		Final:         room.HostFinished && room.GuestFinished,
	}
	switch {
	case mine > theirs:
		v.Outcome = domain.DuelWon
	case mine < theirs:
		v.Outcome = domain.DuelLost
	default:
		v.Outcome = domain.DuelDraw
	}
	return v
}

func (c *DuelCoordinator) newCode() string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return fmt.Sprintf("%04d", 1000+c.rnd.Intn(9000))
}
