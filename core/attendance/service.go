package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/calendar"
	"github.com/trezcool/mahudhurio/core/clock"
	"github.com/trezcool/mahudhurio/core/daterange"
	"github.com/trezcool/mahudhurio/core/dates"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("attendance record not found")
	ErrNotEditable       = errors.New("this day cannot be edited")
	ErrLocked            = errors.New("this record has been reviewed and can only be changed by an admin")
	ErrForbidden         = errors.New("you do not have permission to perform this action")
	ErrInvalidTransition = errors.New("this change is not allowed for the record's current status")

	leaveNotificationTmpl = template.Must(template.New("leave").Parse(
		`A leave reason was submitted for {{.Kind}} {{.SubjectID}} on {{.Date}}:

{{.Remarks}}

Review it from the attendance grid.
`))
)

type (
	Repository interface {
		// FindRecords applies AND on the set QueryFilter fields, ordered by date then subject.
		FindRecords(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Record, error)
		GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (Record, error)
		GetRecordByDay(ctx context.Context, kind Kind, subjectID, date string, exec ...core.DBExecutor) (Record, error)
		// UpsertRecords inserts or replaces by (Kind, SubjectID, Date), all or nothing.
		UpsertRecords(ctx context.Context, recs []Record, exec ...core.DBExecutor) ([]Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error
		CreateLateReason(ctx context.Context, lr LateReason, exec ...core.DBExecutor) (LateReason, error)
		// GetExpectedTime returns the teacher's HH:MM arrival time, or ErrNotFound.
		GetExpectedTime(ctx context.Context, teacherID string, exec ...core.DBExecutor) (string, error)
		SetExpectedTime(ctx context.Context, teacherID, expected string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo            Repository
		cal             *calendar.Calendar
		clock           clock.Clock
		mailSvc         core.EmailService
		logger          core.Logger
		lateGrace       time.Duration
		defaultExpected dates.Clock
		defaultRange    daterange.Option
		maxGridDays     int
		notify          []mail.Address
	}
)

func NewService(
	repo Repository,
	cal *calendar.Calendar,
	clk clock.Clock,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) (*Service, error) {
	expected, err := dates.ParseClock(conf.Attendance.DefaultExpectedTime)
	if err != nil {
		return nil, errors.Wrap(err, "parsing attendance.defaultExpectedTime")
	}
	return &Service{
		repo:            repo,
		cal:             cal,
		clock:           clk,
		mailSvc:         mailSvc,
		logger:          logger,
		lateGrace:       conf.Attendance.LateGrace,
		defaultExpected: expected,
		defaultRange:    daterange.ParseOption(conf.Attendance.DefaultRange),
		maxGridDays:     conf.Attendance.MaxGridDays,
		notify:          core.ParseAddresses(conf.Attendance.LeaveNotifyEmails),
	}, nil
}

func (svc *Service) Calendar() *calendar.Calendar { return svc.cal }

func (svc *Service) Now() time.Time { return svc.clock.Now() }

// Today returns local midnight of the current day.
func (svc *Service) Today() time.Time { return svc.cal.Day(svc.clock.Now()) }

// DefaultWindow resolves the configured default range option for today.
func (svc *Service) DefaultWindow() daterange.Window {
	return daterange.Resolve(svc.defaultRange, nil, svc.Today())
}

// CheckGridSpan rejects windows longer than attendance.maxGridDays. A non-positive maximum disables the check.
func (svc *Service) CheckGridSpan(rng daterange.Window) error {
	if svc.maxGridDays > 0 && rng.DayCount > svc.maxGridDays {
		return core.NewValidationError(
			errors.Errorf("grid spans %d days, more than %d", rng.DayCount, svc.maxGridDays),
			core.FieldError{Field: "days", Error: fmt.Sprintf("a grid spans at most %d days", svc.maxGridDays)},
		)
	}
	return nil
}

// authorize checks that sess may read (or write) the attendance of the given subject.
func (svc *Service) authorize(sess user.Session, kind Kind, subjectID, classID string, write bool) error {
	switch {
	case sess.IsAnonymous():
		return ErrForbidden
	case sess.IsAdmin():
		return nil
	case kind == KindTeacher && sess.IsTeacher() && subjectID == sess.TeacherID:
		return nil
	case kind == KindStudent && sess.IsTeacher() && sess.TeachesClass(classID):
		return nil
	case kind == KindStudent && sess.IsStudent() && subjectID == sess.StudentID && !write:
		return nil
	}
	return ErrForbidden
}

// checkEditable parses the record's day and applies the calendar's editability rule for sess.
func (svc *Service) checkEditable(sess user.Session, date string) error {
	day, err := dates.Parse(date, svc.cal.Location())
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "date", Error: "date must be formatted as YYYY-MM-DD"})
	}
	if !svc.cal.CanEdit(day, svc.clock.Now(), sess.IsAdmin()) {
		return ErrNotEditable
	}
	return nil
}

func (svc *Service) checkUnlocked(sess user.Session, rec Record) error {
	if rec.Locked() && !sess.IsAdmin() {
		return ErrLocked
	}
	return nil
}

// existing returns the record of the given day, or a new unsaved one.
// A stored record is authorized against its own class, and only admins may move it to another one.
func (svc *Service) existing(ctx context.Context, sess user.Session, kind Kind, subjectID, classID, date string) (Record, error) {
	rec, err := svc.repo.GetRecordByDay(ctx, kind, subjectID, date)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Record{}, errors.Wrap(err, "getting record by day")
		}
		rec = Record{Kind: kind, SubjectID: subjectID, Date: date}
	}
	if rec.ClassID != "" {
		if err := svc.authorize(sess, kind, subjectID, rec.ClassID, true); err != nil {
			return Record{}, err
		}
	}
	if classID != "" && (rec.ClassID == "" || sess.IsAdmin()) {
		rec.ClassID = classID
	}
	return rec, nil
}

// Query returns the records matching filter that sess may see. Missing bounds default to the configured range.
func (svc *Service) Query(ctx context.Context, sess user.Session, filter QueryFilter) ([]Record, error) {
	if filter.Kind == "" {
		filter.Kind = KindStudent
	}
	if filter.StartDate == "" || filter.EndDate == "" {
		w := svc.DefaultWindow()
		if filter.StartDate == "" {
			filter.StartDate = w.StartKey()
		}
		if filter.EndDate == "" {
			filter.EndDate = w.EndKey()
		}
	}

	if !sess.IsAdmin() {
		switch {
		case filter.Kind == KindTeacher && sess.IsTeacher():
			filter.SubjectIDs = []string{sess.TeacherID}
		case filter.Kind == KindStudent && sess.IsTeacher() && sess.TeachesClass(filter.ClassID):
		case filter.Kind == KindStudent && sess.IsStudent() && sess.StudentID != "":
			filter.SubjectIDs = []string{sess.StudentID}
		default:
			return nil, ErrForbidden
		}
	}

	recs, err := svc.repo.FindRecords(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "finding records")
	}
	return recs, nil
}

// Get returns the record with the given id if sess may see it.
func (svc *Service) Get(ctx context.Context, sess user.Session, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, false); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Save upserts one record per NewRecord by (kind, subject, date). Either every record is written or none is.
func (svc *Service) Save(ctx context.Context, sess user.Session, kind Kind, nrs ...NewRecord) ([]WriteResult, error) {
	if len(nrs) == 0 {
		return []WriteResult{}, nil
	}

	now := svc.clock.Now().UTC()
	recs := make([]Record, 0, len(nrs))
	seen := make(map[string]int, len(nrs))
	notify := make(map[string]bool, len(nrs))
	for _, nr := range nrs {
		date := nr.dateKey(svc.cal.Location())
		if err := svc.authorize(sess, kind, nr.SubjectID, nr.ClassID, true); err != nil {
			return nil, err
		}
		if err := svc.checkEditable(sess, date); err != nil {
			return nil, err
		}
		if nr.Status == StatusLate && !sess.IsAdmin() {
			return nil, ErrInvalidTransition
		}

		rec, err := svc.existing(ctx, sess, kind, nr.SubjectID, nr.ClassID, date)
		if err != nil {
			return nil, err
		}
		if err := svc.checkUnlocked(sess, rec); err != nil {
			return nil, err
		}

		status := nr.Status
		if kind == KindTeacher && status == StatusPresent {
			at := now
			if nr.CheckedInAt != nil {
				at = *nr.CheckedInAt
			}
			if status, err = svc.checkInStatus(ctx, sess, rec, at); err != nil {
				return nil, err
			}
		}
		prevRemarks := rec.Remarks
		rec.setStatus(status)
		if status == StatusLeave {
			rec.Remarks = nr.Remarks
		}
		if rec.ID == "" {
			rec.CreatedAt = now
			if nr.CheckedInAt != nil {
				rec.CreatedAt = nr.CheckedInAt.UTC()
			}
		}
		rec.UpdatedAt = now
		rec.MarkedBy = sess.UserID

		// last one wins within a batch
		key := rec.SubjectID + "|" + rec.Date
		notify[key] = rec.Status == StatusLeave && rec.Remarks != "" && rec.Remarks != prevRemarks
		if i, ok := seen[key]; ok {
			recs[i] = rec
			continue
		}
		seen[key] = len(recs)
		recs = append(recs, rec)
	}

	saved, err := svc.repo.UpsertRecords(ctx, recs)
	if err != nil {
		return nil, errors.Wrap(err, "upserting records")
	}

	results := make([]WriteResult, 0, len(saved))
	for _, rec := range saved {
		if notify[rec.SubjectID+"|"+rec.Date] {
			svc.notifyLeave(rec)
		}
		results = append(results, WriteResult{Record: rec, FollowUp: followUpAfterWrite(rec)})
	}
	return results, nil
}

// Update changes the status and remarks of the record with the given id. An empty status clears it.
func (svc *Service) Update(ctx context.Context, sess user.Session, id string, ur UpdateRecord) (WriteResult, error) {
	if ur.Status == StatusNone {
		return WriteResult{}, svc.Clear(ctx, sess, id)
	}

	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	if err := svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, true); err != nil {
		return WriteResult{}, err
	}
	if err := svc.checkEditable(sess, rec.Date); err != nil {
		return WriteResult{}, err
	}
	if err := svc.checkUnlocked(sess, rec); err != nil {
		return WriteResult{}, err
	}
	if ur.Status == StatusLate && rec.Status != StatusLate && !sess.IsAdmin() {
		return WriteResult{}, ErrInvalidTransition
	}

	notify := ur.Status == StatusLeave && ur.Remarks != "" && ur.Remarks != rec.Remarks
	rec.setStatus(ur.Status)
	if ur.Status == StatusLeave {
		rec.Remarks = ur.Remarks
	}
	rec.UpdatedAt = svc.clock.Now().UTC()
	rec.MarkedBy = sess.UserID

	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return WriteResult{}, errors.Wrap(err, "updating record")
	}
	if notify {
		svc.notifyLeave(updated)
	}
	return WriteResult{Record: updated, FollowUp: followUpAfterWrite(updated)}, nil
}

// Clear deletes the record with the given id: a day without status has no record.
func (svc *Service) Clear(ctx context.Context, sess user.Session, id string) error {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, true); err != nil {
		return err
	}
	if err := svc.checkEditable(sess, rec.Date); err != nil {
		return err
	}
	if err := svc.checkUnlocked(sess, rec); err != nil {
		return err
	}
	if err := svc.repo.DeleteRecord(ctx, id); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return nil
}

// Cycle moves a day's status to Next(current) and persists it.
// Moving to leave asks the caller to collect a leave reason.
func (svc *Service) Cycle(ctx context.Context, sess user.Session, cr CycleRequest) (WriteResult, error) {
	if err := svc.authorize(sess, cr.Kind, cr.SubjectID, cr.ClassID, true); err != nil {
		return WriteResult{}, err
	}
	if err := svc.checkEditable(sess, cr.Date); err != nil {
		return WriteResult{}, err
	}

	rec, err := svc.existing(ctx, sess, cr.Kind, cr.SubjectID, cr.ClassID, cr.Date)
	if err != nil {
		return WriteResult{}, err
	}
	if err := svc.checkUnlocked(sess, rec); err != nil {
		return WriteResult{}, err
	}

	now := svc.clock.Now().UTC()
	rec.setStatus(Next(rec.Status))
	if rec.ID == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.MarkedBy = sess.UserID

	saved, err := svc.repo.UpsertRecords(ctx, []Record{rec})
	if err != nil {
		return WriteResult{}, errors.Wrap(err, "upserting record")
	}
	rec = saved[0]
	return WriteResult{Record: rec, FollowUp: FollowUpFor(rec.Status)}, nil
}

// UpdateRemarks stores the reason of a leave. Subjects may explain their own leaves.
func (svc *Service) UpdateRemarks(ctx context.Context, sess user.Session, id string, ur UpdateRemarks) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := svc.authorizeSubject(sess, rec); err != nil {
		return Record{}, err
	}
	if rec.Status != StatusLeave {
		return Record{}, ErrInvalidTransition
	}
	if err := svc.checkUnlocked(sess, rec); err != nil {
		return Record{}, err
	}

	rec.Remarks = ur.Remarks
	rec.UpdatedAt = svc.clock.Now().UTC()
	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "updating remarks")
	}
	svc.notifyLeave(updated)
	return updated, nil
}

// authorizeSubject lets a subject act on their own record on top of the usual write rules.
func (svc *Service) authorizeSubject(sess user.Session, rec Record) error {
	if rec.Kind == KindStudent && sess.IsStudent() && rec.SubjectID == sess.StudentID {
		return nil
	}
	return svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, true)
}

// Review records an admin's decision on a leave. Reviewed records are locked for non-admins.
func (svc *Service) Review(ctx context.Context, sess user.Session, id string, rr ReviewRequest) (Record, error) {
	if !sess.IsAdmin() {
		return Record{}, ErrForbidden
	}
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusLeave {
		return Record{}, ErrInvalidTransition
	}

	rec.ApprovalStatus = rr.ApprovalStatus
	rec.ReviewedBy = sess.UserID
	rec.UpdatedAt = svc.clock.Now().UTC()
	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "reviewing record")
	}
	svc.logger.Info("leave reviewed", map[string]interface{}{"record": updated.ID, "approval": updated.ApprovalStatus}, sess)
	return updated, nil
}

// Mark is the admin "mark any date" flow. A present mark made too long after the subject's expected
// arrival time on the current day is stored as late and asks the caller to collect a late reason.
func (svc *Service) Mark(ctx context.Context, sess user.Session, mr MarkRequest) (WriteResult, error) {
	if !sess.IsAdmin() {
		return WriteResult{}, ErrForbidden
	}
	if err := svc.checkEditable(sess, mr.Date); err != nil {
		return WriteResult{}, err
	}

	status := mr.Status
	if status == StatusPresent {
		late, err := svc.isLate(ctx, mr.Kind, mr.SubjectID, mr.Date, mr.ExpectedTime, svc.clock.Now())
		if err != nil {
			return WriteResult{}, err
		}
		if late {
			status = StatusLate
		}
	}

	rec, err := svc.existing(ctx, sess, mr.Kind, mr.SubjectID, mr.ClassID, mr.Date)
	if err != nil {
		return WriteResult{}, err
	}
	now := svc.clock.Now().UTC()
	rec.setStatus(status)
	if status == StatusLeave {
		rec.Remarks = mr.Remarks
	}
	if rec.ID == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.MarkedBy = sess.UserID

	saved, err := svc.repo.UpsertRecords(ctx, []Record{rec})
	if err != nil {
		return WriteResult{}, errors.Wrap(err, "upserting record")
	}
	rec = saved[0]
	return WriteResult{Record: rec, FollowUp: FollowUpFor(rec.Status)}, nil
}

// isLate reports whether arriving at at is late for the subject on date. A non-empty override replaces
// the subject's expected time.
func (svc *Service) isLate(ctx context.Context, kind Kind, subjectID, date, override string, at time.Time) (bool, error) {
	expected, err := svc.ExpectedTime(ctx, kind, subjectID)
	if err != nil {
		return false, err
	}
	if override != "" {
		if expected, err = dates.ParseClock(override); err != nil {
			return false, core.NewValidationError(err, core.FieldError{Field: "expected_time", Error: err.Error()})
		}
	}
	day, err := dates.Parse(date, svc.cal.Location())
	if err != nil {
		return false, err
	}
	return IsLate(at, expected, day, svc.lateGrace), nil
}

// checkInStatus decides the status of a teacher's present check-in made at at.
// For non-admins an earlier check-in of the day stands.
func (svc *Service) checkInStatus(ctx context.Context, sess user.Session, rec Record, at time.Time) (Status, error) {
	if !sess.IsAdmin() && (rec.Status == StatusPresent || rec.Status == StatusLate) {
		return rec.Status, nil
	}
	late, err := svc.isLate(ctx, rec.Kind, rec.SubjectID, rec.Date, "", at)
	if err != nil {
		return StatusNone, err
	}
	if late {
		return StatusLate, nil
	}
	return StatusPresent, nil
}

// ExpectedTime returns the subject's expected arrival time: the teacher's own schedule, else the school default.
func (svc *Service) ExpectedTime(ctx context.Context, kind Kind, subjectID string) (dates.Clock, error) {
	if kind != KindTeacher {
		return svc.defaultExpected, nil
	}
	s, err := svc.repo.GetExpectedTime(ctx, subjectID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return svc.defaultExpected, nil
		}
		return dates.Clock{}, errors.Wrap(err, "getting expected time")
	}
	expected, err := dates.ParseClock(s)
	if err != nil {
		return dates.Clock{}, errors.Wrapf(err, "parsing expected time of teacher %s", subjectID)
	}
	return expected, nil
}

// SetExpectedTime stores a teacher's expected arrival time (HH:MM).
func (svc *Service) SetExpectedTime(ctx context.Context, sess user.Session, teacherID, expected string) error {
	if !sess.IsAdmin() {
		return ErrForbidden
	}
	c, err := dates.ParseClock(expected)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "expected_time", Error: err.Error()})
	}
	if err := svc.repo.SetExpectedTime(ctx, teacherID, c.String()); err != nil {
		return errors.Wrap(err, "setting expected time")
	}
	return nil
}

// SubmitLateReason stores why a subject was late. The day's record must be late.
func (svc *Service) SubmitLateReason(ctx context.Context, sess user.Session, nl NewLateReason) (LateReason, error) {
	rec, err := svc.repo.GetRecordByDay(ctx, nl.Kind, nl.SubjectID, nl.Date)
	if err != nil {
		return LateReason{}, err
	}
	if err := svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, true); err != nil {
		return LateReason{}, err
	}
	if rec.Status != StatusLate {
		return LateReason{}, ErrInvalidTransition
	}

	lr, err := svc.repo.CreateLateReason(ctx, LateReason{
		Kind:      rec.Kind,
		SubjectID: rec.SubjectID,
		Date:      rec.Date,
		Reason:    nl.Reason,
		CreatedBy: sess.UserID,
		CreatedAt: svc.clock.Now().UTC(),
	})
	if err != nil {
		return LateReason{}, errors.Wrap(err, "creating late reason")
	}
	return lr, nil
}

// CheckOut stamps the record's out time with the current instant.
func (svc *Service) CheckOut(ctx context.Context, sess user.Session, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := svc.authorize(sess, rec.Kind, rec.SubjectID, rec.ClassID, true); err != nil {
		return Record{}, err
	}
	if rec.Status != StatusPresent && rec.Status != StatusLate {
		return Record{}, ErrInvalidTransition
	}
	if err := svc.checkEditable(sess, rec.Date); err != nil {
		return Record{}, err
	}

	now := svc.clock.Now().UTC()
	rec.OutTime = &now
	rec.UpdatedAt = now
	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "checking out")
	}
	return updated, nil
}

// Summarize counts statuses per subject over the filtered records.
func (svc *Service) Summarize(ctx context.Context, sess user.Session, filter QueryFilter) ([]Summary, error) {
	recs, err := svc.Query(ctx, sess, filter)
	if err != nil {
		return nil, err
	}

	bySubject := make(map[string]*Summary)
	for _, rec := range recs {
		s, ok := bySubject[rec.SubjectID]
		if !ok {
			s = &Summary{SubjectID: rec.SubjectID}
			bySubject[rec.SubjectID] = s
		}
		s.add(rec.Status)
	}

	summaries := make([]Summary, 0, len(bySubject))
	for _, s := range bySubject {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SubjectID < summaries[j].SubjectID })
	return summaries, nil
}

func (svc *Service) notifyLeave(rec Record) {
	if len(svc.notify) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           svc.notify,
		Subject:      "Leave reason submitted for " + rec.Date,
		Template:     leaveNotificationTmpl,
		TemplateData: rec,
	})
}

// followUpAfterWrite asks for a reason only when none was given with the write.
func followUpAfterWrite(rec Record) FollowUp {
	if rec.Status == StatusLeave && rec.Remarks != "" {
		return FollowUpNone
	}
	return FollowUpFor(rec.Status)
}
