package stats

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotCols = []string{"date", "total_appointments", "attended_appointments", "missed_appointments", "booked_appointments", "department_stats", "doctor_stats", "created_at"}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgStore(mock)
}

func TestPgStoreCreateConflictIsExists(t *testing.T) {
	mock, s := newMockStore(t)

	mock.ExpectQuery("INSERT INTO daily_stats").
		WithArgs("2025-01-09", 0, 0, 0, 0, []byte(`[]`), []byte(`[]`)).
		WillReturnRows(pgxmock.NewRows(snapshotCols))

	_, err := s.Create(context.Background(), DailySnapshot{Date: "2025-01-09"})
	assert.ErrorIs(t, err, ErrSnapshotExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreGetByDateDecodesBreakdowns(t *testing.T) {
	mock, s := newMockStore(t)
	created := time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM daily_stats").
		WithArgs("2025-01-09").
		WillReturnRows(pgxmock.NewRows(snapshotCols).AddRow(
			"2025-01-09", 3, 2, 1, 0,
			[]byte(`[{"departmentId":"7f1c6c2e-7a4b-4d7e-9f43-2b0c9a0e1d11","departmentName":"Cardiology","totalAppointments":3,"attendedAppointments":2,"missedAppointments":1,"bookedAppointments":0}]`),
			[]byte(`[]`),
			created,
		))

	snap, err := s.GetByDate(context.Background(), "2025-01-09")
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 3, Attended: 2, Missed: 1}, snap.Counts)
	require.Len(t, snap.Departments, 1)
	assert.Equal(t, "Cardiology", snap.Departments[0].DepartmentName)
	assert.Equal(t, 2, snap.Departments[0].Attended)
	assert.Empty(t, snap.Doctors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreGetByDateMissing(t *testing.T) {
	mock, s := newMockStore(t)

	mock.ExpectQuery("FROM daily_stats").
		WithArgs("2025-01-09").
		WillReturnRows(pgxmock.NewRows(snapshotCols))

	_, err := s.GetByDate(context.Background(), "2025-01-09")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreDeleteBefore(t *testing.T) {
	mock, s := newMockStore(t)

	mock.ExpectExec("DELETE FROM daily_stats").
		WithArgs("2024-01-10").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteBefore(context.Background(), "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreTotals(t *testing.T) {
	mock, s := newMockStore(t)

	mock.ExpectQuery(`FROM "daily_stats"`).
		WithArgs("2025-01-01", "2025-01-31").
		WillReturnRows(pgxmock.NewRows([]string{"count", "total", "attended", "missed", "booked"}).
			AddRow(int64(2), int64(6), int64(4), int64(1), int64(1)))

	got, err := s.Totals(context.Background(), "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, Totals{Days: 2, Total: 6, Attended: 4, Missed: 1, Booked: 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
