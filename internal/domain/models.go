package domain

import "time"

// MediaKind discriminates question attachments.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media references an asset attached to a question. LocalFileName is filled in
// by the content cache once the asset has been mirrored to local storage.
type Media struct {
	Kind          MediaKind `json:"type"`
	URI           string    `json:"uri"`
	LocalFileName string    `json:"localFileName,omitempty"`
}

// Question is a single multiple-choice question as served by the remote
// source. CorrectAnswerIndex is nil for questions without a scorable key;
// those never count as correct or incorrect.
type Question struct {
	ID                 int      `json:"id"`
	Text               string   `json:"text"`
	Answers            []string `json:"answers"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	Media              *Media   `json:"media,omitempty"`
}

// QuestionSet is an ordered question list identified by its source URL.
type QuestionSet []Question

// QuizDefinition describes one quiz in the catalog.
type QuizDefinition struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	FullName  string `yaml:"fullName" json:"fullName"`
	SchoolID  string `yaml:"schoolId" json:"schoolId"`
	SourceURL string `yaml:"sourceUrl" json:"sourceUrl"`
}

// School groups catalog entries for filtering.
type School struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// SessionMode selects the session state machine variant.
type SessionMode string

const (
	ModeExam     SessionMode = "exam"
	ModeTraining SessionMode = "training"
	ModeOneLife  SessionMode = "onelife"
)

// SessionStatus is the lifecycle state of an interactive session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

// Result is the outcome of a completed session, handed to the history
// recorder. Total is 0 for one-life runs, where Score is a streak count.
type Result struct {
	ExamID     string         `json:"examId"`
	Mode       SessionMode    `json:"mode"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Percentage int            `json:"percentage"`
	RecordedAt time.Time      `json:"date"`
	Details    *ResultDetails `json:"details,omitempty"`
}

// ResultDetails keeps the drawn questions and the user's answers so old
// attempts can be reviewed later. UserAnswers is parallel to Questions; nil
// means skipped.
type ResultDetails struct {
	Questions   []Question `json:"questions"`
	UserAnswers []*int     `json:"userAnswers"`
}

// RoomStatus is the shared duel room lifecycle.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomPlaying RoomStatus = "playing"
)

// Room is the shared duel document. Both parties observe the whole document
// but each party only ever writes its own score and finished fields; that
// discipline is what keeps the no-lock design conflict-free.
type Room struct {
	Code          string     `json:"code"`
	HostID        string     `json:"hostId"`
	HostName      string     `json:"hostName"`
	GuestID       string     `json:"guestId,omitempty"`
	GuestName     string     `json:"guestName,omitempty"`
	Status        RoomStatus `json:"status"`
	Questions     []Question `json:"questions"`
	HostScore     int        `json:"hostScore"`
	GuestScore    int        `json:"guestScore"`
	HostFinished  bool       `json:"hostFinished"`
	GuestFinished bool       `json:"guestFinished"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ScoreOf returns the score field belonging to the given role.
func (r Room) ScoreOf(host bool) int {
	if host {
		return r.HostScore
	}
	return r.GuestScore
}

// FinishedOf returns the finished flag belonging to the given role.
func (r Room) FinishedOf(host bool) bool {
	if host {
		return r.HostFinished
	}
	return r.GuestFinished
}

// DuelOutcome is the locally computed comparison once a party has finished.
type DuelOutcome string

const (
	DuelWon  DuelOutcome = "won"
	DuelLost DuelOutcome = "lost"
	DuelDraw DuelOutcome = "draw"
)

// DuelVerdict compares own score against the opponent's observed score.
// Final is true only once both finished flags are set; before that the
// outcome reflects the opponent's in-progress score.
type DuelVerdict struct {
	Outcome       DuelOutcome `json:"outcome"`
	Final         bool        `json:"final"`
	MyScore       int         `json:"myScore"`
	OpponentScore int         `json:"opponentScore"`
}

// QuizStats aggregates a user's history for one quiz. Attempts, AveragePercent
// and Passed are populated for pro users; Streak (consecutive passes counted
// back from the most recent attempt) for free users.
type QuizStats struct {
	ExamID         string `json:"examId"`
	Attempts       int    `json:"attempts"`
	AveragePercent int    `json:"averagePercent"`
	Passed         int    `json:"passed"`
	Streak         int    `json:"streak"`
}

// Profile is the per-user record behind the entitlement gate.
type Profile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	IsPro          bool      `json:"isPro"`
	FavoriteSchool string    `json:"favoriteSchool,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
