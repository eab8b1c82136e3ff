package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryInsertIfAbsent(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))

	inserted, err := repo.InsertIfAbsent(context.Background(), &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stu-1",
		Status:    models.AttendancePresent,
		Method:    models.RecordMethodFaceRecognition,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertIfAbsentConflict(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	// ON CONFLICT DO NOTHING returns no rows when the pair already exists.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inserted, err := repo.InsertIfAbsent(context.Background(), &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stu-1",
		Status:    models.AttendancePresent,
		Method:    models.RecordMethodFaceRecognition,
	})
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	rows := sqlmock.NewRows([]string{"id", "status", "method", "recorded_at", "student_reg", "student_name", "year_level"}).
		AddRow("rec-1", "present", "face_recognition", time.Now(), "REG/001", "Alice Umutoni", "3").
		AddRow("rec-2", "present", "manual", time.Now(), "REG/002", "Bob Mugisha", "3")
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records ar")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	records, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "REG/001", records[0].StudentReg)
	require.Equal(t, models.RecordMethodManual, records[1].Method)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindOwned(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	cols := []string{"id", "session_id", "student_id", "status", "method", "recorded_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.id = $1 AND ($2 = '' OR s.lecturer_id = $2)")).
		WithArgs("rec-1", "lect-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("rec-1", "sess-1", "stu-1", "present", "manual", time.Now()))
	record, err := repo.FindOwned(context.Background(), "rec-1", "lect-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "sess-1", record.SessionID)

	// Someone else's lecturer id matches nothing.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.id = $1 AND ($2 = '' OR s.lecturer_id = $2)")).
		WithArgs("rec-1", "lect-2").
		WillReturnRows(sqlmock.NewRows(cols))
	record, err = repo.FindOwned(context.Background(), "rec-1", "lect-2")
	require.NoError(t, err)
	require.Nil(t, record)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "rec-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
