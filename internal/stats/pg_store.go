package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-appointments/internal/db"
)

var pg = goqu.Dialect("postgres")

type PgStore struct {
	pool db.Querier
}

func NewPgStore(pool db.Querier) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

// Helpers

const snapshotColumns = `date, total_appointments, attended_appointments, missed_appointments, booked_appointments, department_stats, doctor_stats, created_at`

var snapshotSelect = []any{"date", "total_appointments", "attended_appointments", "missed_appointments", "booked_appointments", "department_stats", "doctor_stats", "created_at"}

func scanSnapshot(row pgx.Row) (*DailySnapshot, error) {
	var (
		snap        DailySnapshot
		departments []byte
		doctors     []byte
	)

	err := row.Scan(
		&snap.Date,
		&snap.Total,
		&snap.Attended,
		&snap.Missed,
		&snap.Booked,
		&departments,
		&doctors,
		&snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	if len(departments) > 0 {
		if err := json.Unmarshal(departments, &snap.Departments); err != nil {
			return nil, fmt.Errorf("decode department_stats: %w", err)
		}
	}
	if len(doctors) > 0 {
		if err := json.Unmarshal(doctors, &snap.Doctors); err != nil {
			return nil, fmt.Errorf("decode doctor_stats: %w", err)
		}
	}
	return &snap, nil
}

func rangeExpressions(start, end string) []exp.Expression {
	var where []exp.Expression
	if start != "" {
		where = append(where, goqu.C("date").Gte(start))
	}
	if end != "" {
		where = append(where, goqu.C("date").Lte(end))
	}
	return where
}

// Interface methods

func (s *PgStore) GetByDate(ctx context.Context, date string) (*DailySnapshot, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM daily_stats
		WHERE date = $1
	`, date)
	return scanSnapshot(row)
}

func (s *PgStore) ListByDateRange(ctx context.Context, start, end string, page, limit int) (SnapshotPage, error) {
	page, limit = paging(page, limit)
	where := rangeExpressions(start, end)

	countSQL, countArgs, err := pg.From("daily_stats").
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return SnapshotPage{}, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := s.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return SnapshotPage{}, fmt.Errorf("count snapshots: %w", err)
	}

	listSQL, listArgs, err := pg.From("daily_stats").
		Select(snapshotSelect...).
		Where(where...).
		Order(goqu.C("date").Desc()).
		Limit(uint(limit)).
		Offset(uint((page - 1) * limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return SnapshotPage{}, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.conn(ctx).Query(ctx, listSQL, listArgs...)
	if err != nil {
		return SnapshotPage{}, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var items []DailySnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return SnapshotPage{}, err
		}
		items = append(items, *snap)
	}
	if err := rows.Err(); err != nil {
		return SnapshotPage{}, err
	}
	return newSnapshotPage(items, total, page, limit), nil
}

func (s *PgStore) Create(ctx context.Context, snap DailySnapshot) (*DailySnapshot, error) {
	departments, err := json.Marshal(nonNilDepartments(snap.Departments))
	if err != nil {
		return nil, fmt.Errorf("encode department_stats: %w", err)
	}
	doctors, err := json.Marshal(nonNilDoctors(snap.Doctors))
	if err != nil {
		return nil, fmt.Errorf("encode doctor_stats: %w", err)
	}

	row := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO daily_stats (date, total_appointments, attended_appointments, missed_appointments, booked_appointments, department_stats, doctor_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO NOTHING
		RETURNING `+snapshotColumns+`
	`, snap.Date, snap.Total, snap.Attended, snap.Missed, snap.Booked, departments, doctors)

	created, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) || db.IsUniqueViolation(err) {
			return nil, ErrSnapshotExists
		}
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return created, nil
}

func (s *PgStore) DeleteBefore(ctx context.Context, cutoff string) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM daily_stats WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) Latest(ctx context.Context) (*DailySnapshot, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM daily_stats
		ORDER BY date DESC
		LIMIT 1
	`)
	return scanSnapshot(row)
}

func (s *PgStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM daily_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

func (s *PgStore) Totals(ctx context.Context, start, end string) (Totals, error) {
	query, args, err := pg.From("daily_stats").
		Select(
			goqu.COUNT(goqu.Star()),
			goqu.COALESCE(goqu.SUM("total_appointments"), goqu.L("0")),
			goqu.COALESCE(goqu.SUM("attended_appointments"), goqu.L("0")),
			goqu.COALESCE(goqu.SUM("missed_appointments"), goqu.L("0")),
			goqu.COALESCE(goqu.SUM("booked_appointments"), goqu.L("0")),
		).
		Where(rangeExpressions(start, end)...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Totals{}, fmt.Errorf("build totals query: %w", err)
	}

	var t Totals
	err = s.conn(ctx).QueryRow(ctx, query, args...).Scan(&t.Days, &t.Total, &t.Attended, &t.Missed, &t.Booked)
	if err != nil {
		return Totals{}, fmt.Errorf("sum snapshots: %w", err)
	}
	return t, nil
}

func nonNilDepartments(v []DepartmentStats) []DepartmentStats {
	if v == nil {
		return []DepartmentStats{}
	}
	return v
}

func nonNilDoctors(v []DoctorStats) []DoctorStats {
	if v == nil {
		return []DoctorStats{}
	}
	return v
}
