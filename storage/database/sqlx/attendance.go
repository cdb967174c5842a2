package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

const (
	attendanceTable = "attendance"
	lateReasonTable = "late_reasons"
	scheduleTable   = "teacher_schedules"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	recordColumns = []string{
		"id", "kind", "subject_id", "class_id", "date::text AS date", "status", "remarks",
		"approval_status", "reviewed_by", "marked_by", "created_at", "updated_at", "out_time",
	}
	recordReturning = "RETURNING " + strings.Join(recordColumns, ", ")

	upsertSuffix = `ON CONFLICT (kind, subject_id, date) DO UPDATE SET
		class_id = COALESCE(EXCLUDED.class_id, attendance.class_id),
		status = EXCLUDED.status,
		remarks = EXCLUDED.remarks,
		approval_status = EXCLUDED.approval_status,
		reviewed_by = EXCLUDED.reviewed_by,
		marked_by = EXCLUDED.marked_by,
		updated_at = EXCLUDED.updated_at,
		out_time = EXCLUDED.out_time
	` + recordReturning
)

type recordRow struct {
	ID             string      `db:"id"`
	Kind           string      `db:"kind"`
	SubjectID      string      `db:"subject_id"`
	ClassID        null.String `db:"class_id"`
	Date           string      `db:"date"`
	Status         string      `db:"status"`
	Remarks        null.String `db:"remarks"`
	ApprovalStatus null.String `db:"approval_status"`
	ReviewedBy     null.String `db:"reviewed_by"`
	MarkedBy       null.String `db:"marked_by"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	OutTime        null.Time   `db:"out_time"`
}

func toRow(rec attendance.Record) recordRow {
	return recordRow{
		ID:             rec.ID,
		Kind:           string(rec.Kind),
		SubjectID:      rec.SubjectID,
		ClassID:        null.NewString(rec.ClassID, rec.ClassID != ""),
		Date:           rec.Date,
		Status:         string(rec.Status),
		Remarks:        null.NewString(rec.Remarks, rec.Remarks != ""),
		ApprovalStatus: null.NewString(string(rec.ApprovalStatus), rec.ApprovalStatus != attendance.ApprovalNone),
		ReviewedBy:     null.NewString(rec.ReviewedBy, rec.ReviewedBy != ""),
		MarkedBy:       null.NewString(rec.MarkedBy, rec.MarkedBy != ""),
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
		OutTime:        null.TimeFromPtr(rec.OutTime),
	}
}

func (row recordRow) record() attendance.Record {
	return attendance.Record{
		ID:             row.ID,
		Kind:           attendance.Kind(row.Kind),
		SubjectID:      row.SubjectID,
		ClassID:        row.ClassID.String,
		Date:           row.Date,
		Status:         attendance.Status(row.Status),
		Remarks:        row.Remarks.String,
		ApprovalStatus: attendance.ApprovalStatus(row.ApprovalStatus.String),
		ReviewedBy:     row.ReviewedBy.String,
		MarkedBy:       row.MarkedBy.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		OutTime:        row.OutTime.Ptr(),
	}
}

type attendanceRepository struct {
	db core.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db core.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

// dbErr wraps err with msg. A closed connection pool can't recover and is reported as a shutdown error.
func dbErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrConnDone {
		return core.NewShutdownError(msg + ": database connection closed")
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return dbErr(err, msg)
}

// filterQuery builds the SELECT matching filter, ordered by date then subject.
func filterQuery(filter attendance.QueryFilter) sq.SelectBuilder {
	q := psql.Select(recordColumns...).From(attendanceTable)
	if filter.Kind != "" {
		q = q.Where(sq.Eq{"kind": string(filter.Kind)})
	}
	if len(filter.SubjectIDs) > 0 {
		q = q.Where(sq.Eq{"subject_id": filter.SubjectIDs})
	}
	if filter.ClassID != "" {
		q = q.Where(sq.Eq{"class_id": filter.ClassID})
	}
	if filter.StartDate != "" {
		q = q.Where(sq.GtOrEq{"date": filter.StartDate})
	}
	if filter.EndDate != "" {
		q = q.Where(sq.LtOrEq{"date": filter.EndDate})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	return q.OrderBy(
		core.DBOrdering{Field: "date", Ascending: true}.String(),
		core.DBOrdering{Field: "subject_id", Ascending: true}.String(),
	)
}

func upsertQuery(rec attendance.Record) sq.InsertBuilder {
	row := toRow(rec)
	return psql.Insert(attendanceTable).
		Columns("id", "kind", "subject_id", "class_id", "date", "status", "remarks",
			"approval_status", "reviewed_by", "marked_by", "created_at", "updated_at", "out_time").
		Values(row.ID, row.Kind, row.SubjectID, row.ClassID, row.Date, row.Status, row.Remarks,
			row.ApprovalStatus, row.ReviewedBy, row.MarkedBy, row.CreatedAt, row.UpdatedAt, row.OutTime).
		Suffix(upsertSuffix)
}

func (repo attendanceRepository) getOne(ctx context.Context, exec core.DBExecutor, q sq.SelectBuilder, msg string) (attendance.Record, error) {
	query, args, err := q.Limit(1).ToSql()
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "building query")
	}
	var row recordRow
	if err = sqlx.GetContext(ctx, exec, &row, query, args...); err != nil {
		return attendance.Record{}, trapNoRowsErr(err, msg)
	}
	return row.record(), nil
}

func (repo attendanceRepository) FindRecords(ctx context.Context, filter attendance.QueryFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	query, args, err := filterQuery(filter).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []recordRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "selecting records")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (attendance.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	q := psql.Select(recordColumns...).From(attendanceTable).Where(sq.Eq{"id": id})
	return repo.getOne(ctx, repo.getExec(exec), q, "getting record")
}

func (repo attendanceRepository) GetRecordByDay(ctx context.Context, kind attendance.Kind, subjectID, date string, exec ...core.DBExecutor) (attendance.Record, error) {
	q := psql.Select(recordColumns...).From(attendanceTable).
		Where(sq.Eq{"kind": string(kind), "subject_id": subjectID, "date": date})
	return repo.getOne(ctx, repo.getExec(exec), q, "getting record by day")
}

func (repo attendanceRepository) upsert(ctx context.Context, exec core.DBExecutor, recs []attendance.Record) ([]attendance.Record, error) {
	saved := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		query, args, err := upsertQuery(rec).ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "building query")
		}
		var row recordRow
		if err = sqlx.GetContext(ctx, exec, &row, query, args...); err != nil {
			return nil, dbErr(err, "upserting record")
		}
		saved = append(saved, row.record())
	}
	return saved, nil
}

// UpsertRecords runs in its own transaction unless an executor is given.
func (repo attendanceRepository) UpsertRecords(ctx context.Context, recs []attendance.Record, exec ...core.DBExecutor) (saved []attendance.Record, err error) {
	if len(exec) > 0 {
		return repo.upsert(ctx, exec[0], recs)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, dbErr(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if saved, err = repo.upsert(ctx, tx, recs); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, dbErr(err, "committing transaction")
	}
	return saved, nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	row := toRow(rec)
	query, args, err := psql.Update(attendanceTable).
		SetMap(map[string]interface{}{
			"class_id":        row.ClassID,
			"date":            row.Date,
			"status":          row.Status,
			"remarks":         row.Remarks,
			"approval_status": row.ApprovalStatus,
			"reviewed_by":     row.ReviewedBy,
			"marked_by":       row.MarkedBy,
			"updated_at":      row.UpdatedAt,
			"out_time":        row.OutTime,
		}).
		Where(sq.Eq{"id": row.ID}).
		Suffix(recordReturning).
		ToSql()
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "building query")
	}

	var updated recordRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &updated, query, args...); err != nil {
		return attendance.Record{}, trapNoRowsErr(err, "updating record")
	}
	return updated.record(), nil
}

func (repo attendanceRepository) DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.ErrNotFound
	}
	query, args, err := psql.Delete(attendanceTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return dbErr(err, "deleting record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo attendanceRepository) CreateLateReason(ctx context.Context, lr attendance.LateReason, exec ...core.DBExecutor) (attendance.LateReason, error) {
	lr.ID = uuid.New().String()
	query, args, err := psql.Insert(lateReasonTable).
		Columns("id", "kind", "subject_id", "date", "reason", "created_by", "created_at").
		Values(lr.ID, string(lr.Kind), lr.SubjectID, lr.Date, lr.Reason, null.NewString(lr.CreatedBy, lr.CreatedBy != ""), lr.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return attendance.LateReason{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return attendance.LateReason{}, dbErr(err, "inserting late reason")
	}
	return lr, nil
}

func (repo attendanceRepository) GetExpectedTime(ctx context.Context, teacherID string, exec ...core.DBExecutor) (string, error) {
	query, args, err := psql.Select("expected_time").From(scheduleTable).Where(sq.Eq{"teacher_id": teacherID}).ToSql()
	if err != nil {
		return "", errors.Wrap(err, "building query")
	}
	var expected string
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &expected, query, args...); err != nil {
		return "", trapNoRowsErr(err, "getting expected time")
	}
	return expected, nil
}

func (repo attendanceRepository) SetExpectedTime(ctx context.Context, teacherID, expected string, exec ...core.DBExecutor) error {
	query, args, err := psql.Insert(scheduleTable).
		Columns("teacher_id", "expected_time", "updated_at").
		Values(teacherID, expected, time.Now().UTC()).
		Suffix("ON CONFLICT (teacher_id) DO UPDATE SET expected_time = EXCLUDED.expected_time, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return dbErr(err, "setting expected time")
	}
	return nil
}
