package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

var errDuplicateDay = errors.New("a record already exists for this subject and date")

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func keyOf(rec attendance.Record) dayKey {
	return dayKey{kind: rec.Kind, subjectID: rec.SubjectID, date: rec.Date}
}

func contains(vals []string, val string) bool {
	for _, v := range vals {
		if v == val {
			return true
		}
	}
	return false
}

func matches(rec attendance.Record, filter attendance.QueryFilter) bool {
	if filter.Kind != "" && rec.Kind != filter.Kind {
		return false
	}
	if len(filter.SubjectIDs) > 0 && !contains(filter.SubjectIDs, rec.SubjectID) {
		return false
	}
	if filter.ClassID != "" && rec.ClassID != filter.ClassID {
		return false
	}
	// YYYY-MM-DD keys sort chronologically
	if filter.StartDate != "" && rec.Date < filter.StartDate {
		return false
	}
	if filter.EndDate != "" && rec.Date > filter.EndDate {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, st := range filter.Statuses {
			if rec.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (repo *attendanceRepository) FindRecords(ctx context.Context, filter attendance.QueryFilter, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]attendance.Record, 0)
	for _, rec := range repo.db.records {
		if matches(*rec, filter) {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date < recs[j].Date
		}
		return recs[i].SubjectID < recs[j].SubjectID
	})
	return recs, nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, id string, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.records[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) GetRecordByDay(ctx context.Context, kind attendance.Kind, subjectID, date string, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.byDay[dayKey{kind: kind, subjectID: subjectID, date: date}]; ok {
		return *repo.db.records[id], nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpsertRecords(ctx context.Context, recs []attendance.Record, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saved := make([]attendance.Record, 0, len(recs))
	batch := make(map[dayKey]int, len(recs))
	for _, rec := range recs {
		if i, ok := batch[keyOf(rec)]; ok {
			rec.ID, rec.CreatedAt = saved[i].ID, saved[i].CreatedAt
			saved[i] = rec
			continue
		}
		if id, ok := repo.db.byDay[keyOf(rec)]; ok {
			// replace, keeping identity and creation time
			existing := repo.db.records[id]
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		} else {
			rec.ID = uuid.New().String()
		}
		batch[keyOf(rec)] = len(saved)
		saved = append(saved, rec)
	}
	for i := range saved {
		rec := saved[i]
		repo.db.records[rec.ID] = &rec
		repo.db.byDay[keyOf(rec)] = rec.ID
	}
	return saved, nil
}

func (repo *attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing, ok := repo.db.records[rec.ID]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if keyOf(*existing) != keyOf(rec) {
		if _, taken := repo.db.byDay[keyOf(rec)]; taken {
			return attendance.Record{}, errDuplicateDay
		}
		delete(repo.db.byDay, keyOf(*existing))
	}
	rec.CreatedAt = existing.CreatedAt
	repo.db.records[rec.ID] = &rec
	repo.db.byDay[keyOf(rec)] = rec.ID
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecord(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.records[id]
	if !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.byDay, keyOf(*rec))
	delete(repo.db.records, id)
	return nil
}

func (repo *attendanceRepository) CreateLateReason(ctx context.Context, lr attendance.LateReason, _ ...core.DBExecutor) (attendance.LateReason, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	lr.ID = uuid.New().String()
	repo.db.lateReasons[lr.ID] = &lr
	return lr, nil
}

func (repo *attendanceRepository) GetExpectedTime(ctx context.Context, teacherID string, _ ...core.DBExecutor) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if expected, ok := repo.db.schedules[teacherID]; ok {
		return expected, nil
	}
	return "", attendance.ErrNotFound
}

func (repo *attendanceRepository) SetExpectedTime(ctx context.Context, teacherID, expected string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.schedules[teacherID] = expected
	return nil
}
