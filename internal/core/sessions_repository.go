package core

import (
	"database/sql"
	"math"

	"github.com/jmoiron/sqlx"
)

const (
	sessionsPageDefault    int = 1
	sessionsPerPageDefault int = 50
)

// SessionsDBStorer is the external course/session store boundary. The
// fanout subsystem only marks sessions live or ended; attendance records
// are out of its reach.
type SessionsDBStorer interface {
	Find(id SessionID) (*Session, error)
	MarkLive(id SessionID) error
	MarkEnded(id SessionID) error
	SetViewersCount(id SessionID, count int) error
}

type LiveSessionsLister interface {
	GetLive(page int, perPage int) (*LiveSessions, error)
}

type LiveSessions struct {
	Sessions   []*Session
	TotalPages int
}

type SessionsRepository struct {
	db *sqlx.DB
}

func NewSessionsRepository(db *sqlx.DB) *SessionsRepository {
	return &SessionsRepository{
		db: db,
	}
}

func (r *SessionsRepository) Find(id SessionID) (*Session, error) {
	session := &Session{}

	err := r.db.Get(session,
		`SELECT * FROM sessions WHERE id = $1 LIMIT 1`,
		string(id),
	)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *SessionsRepository) MarkLive(id SessionID) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET
			updated_at = NOW(),
			started_at = COALESCE(started_at, NOW()),
			state = $1
		WHERE id = $2`,
		string(SessionLive),
		string(id),
	)
	return err
}

func (r *SessionsRepository) MarkEnded(id SessionID) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET
			updated_at = NOW(),
			ended_at = NOW(),
			viewers_count = 0,
			state = $1
		WHERE id = $2`,
		string(SessionEnded),
		string(id),
	)
	return err
}

func (r *SessionsRepository) SetViewersCount(id SessionID, count int) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET updated_at = NOW(), viewers_count = $1 WHERE id = $2`,
		count,
		string(id),
	)
	return err
}

func (r *SessionsRepository) GetLive(page int, perPage int) (*LiveSessions, error) {
	if page == 0 {
		page = sessionsPageDefault
	}
	if perPage == 0 {
		perPage = sessionsPerPageDefault
	}

	live := &LiveSessions{}

	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM sessions WHERE state = $1`, string(SessionLive))
	if err != nil {
		return nil, err
	}
	live.TotalPages = int(math.Ceil(float64(total) / float64(perPage)))

	sessions := []*Session{}
	err = r.db.Select(&sessions,
		`SELECT
			id,
			host_id,
			title,
			state,
			viewers_count,
			started_at,
			updated_at,
			created_at
		FROM sessions
		WHERE state = $1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		string(SessionLive),
		perPage, (page-1)*perPage,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	live.Sessions = sessions

	return live, nil
}
