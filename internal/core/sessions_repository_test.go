package core

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func newMockRepository(t *testing.T) (*SessionsRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)

	t.Cleanup(func() { db.Close() })

	return NewSessionsRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestMarkLive(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE sessions SET").
		WithArgs(string(SessionLive), "lecture-42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkLive(SessionID("lecture-42"))
	assert.Nil(t, err)

	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestMarkEnded(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE sessions SET").
		WithArgs(string(SessionEnded), "lecture-42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkEnded(SessionID("lecture-42"))
	assert.Nil(t, err)

	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSetViewersCount(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE sessions SET").
		WithArgs(3, "lecture-42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetViewersCount(SessionID("lecture-42"), 3)
	assert.Nil(t, err)

	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"id", "host_id", "title", "state"}).
		AddRow("lecture-42", "host-1", "Operating Systems", string(SessionLive))

	mock.ExpectQuery("SELECT \\* FROM sessions").
		WithArgs("lecture-42").
		WillReturnRows(rows)

	session, err := repo.Find(SessionID("lecture-42"))
	assert.Nil(t, err)

	assert.Equal(t, SessionID("lecture-42"), session.ID)
	assert.Equal(t, ParticipantID("host-1"), session.HostID)
	assert.Equal(t, SessionLive, session.State)
	assert.Equal(t, true, session.IsLive())
}
