package echoapi

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/daterange"
)

type (
	// attendanceQuery is the query string of the listing endpoints.
	// student_id and teacher_id are aliases of subject_id; range applies when no dates are given.
	attendanceQuery struct {
		SubjectIDs []string            `query:"subject_id"`
		StudentIDs []string            `query:"student_id"`
		TeacherIDs []string            `query:"teacher_id"`
		ClassID    string              `query:"class_id"`
		StartDate  string              `query:"start_date"`
		EndDate    string              `query:"end_date"`
		Statuses   []attendance.Status `query:"status"`
		Range      string              `query:"range"`
	}

	// rangeQuery selects a window: a range option with its custom bounds, or start plus days.
	rangeQuery struct {
		Option string `query:"option" json:"option"`
		Start  string `query:"start" json:"start" validate:"omitempty,isodate"`
		End    string `query:"end" json:"end" validate:"omitempty,isodate"`
		Days   string `query:"days" json:"days" validate:"omitempty,numeric"`
	}

	// saveRequest is either a single record or a {"records": [...]} batch.
	saveRequest struct {
		Records []attendance.NewRecord `json:"records"`
		attendance.NewRecord
	}

	// teacherRecord is a teacher attendance write keyed by teacher_id.
	teacherRecord struct {
		TeacherID   string            `json:"teacher_id"`
		Date        string            `json:"date"`
		Status      attendance.Status `json:"status"`
		Remarks     string            `json:"remarks"`
		CheckedInAt *time.Time        `json:"created_at"`
	}

	teacherSaveRequest struct {
		Records []teacherRecord `json:"records"`
		teacherRecord
	}

	lateReasonRequest struct {
		TeacherID string `json:"teacher_id"`
		attendance.NewLateReason
	}

	expectedTimeRequest struct {
		ExpectedTime string `json:"expected_time" validate:"required,clock"`
	}
)

func (q attendanceQuery) filter(kind attendance.Kind, today time.Time) attendance.QueryFilter {
	f := attendance.QueryFilter{
		Kind:      kind,
		ClassID:   q.ClassID,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Statuses:  q.Statuses,
	}
	f.SubjectIDs = append(f.SubjectIDs, q.SubjectIDs...)
	f.SubjectIDs = append(f.SubjectIDs, q.StudentIDs...)
	f.SubjectIDs = append(f.SubjectIDs, q.TeacherIDs...)

	if q.Range != "" && f.StartDate == "" && f.EndDate == "" {
		w := daterange.Resolve(daterange.ParseOption(q.Range), nil, today)
		f.StartDate = w.StartKey()
		f.EndDate = w.EndKey()
	}
	return f
}

func (rq *rangeQuery) Validate(validate *validator.Validate) error {
	rq.Option = core.CleanString(rq.Option)
	rq.Start = core.CleanString(rq.Start)
	rq.End = core.CleanString(rq.End)
	rq.Days = core.CleanString(rq.Days)
	if err := validate.Struct(rq); err != nil {
		return err
	}
	if rq.Days != "" {
		if n, err := strconv.Atoi(rq.Days); err != nil || n < 1 {
			return core.NewValidationError(
				errors.Errorf("invalid days %q", rq.Days),
				core.FieldError{Field: "days", Error: "days must be a positive whole number"},
			)
		}
	}
	return nil
}

func (rq rangeQuery) days() int {
	n, _ := strconv.Atoi(rq.Days)
	return n
}

// window resolves the query; custom bounds are only looked at for the custom option.
func (rq rangeQuery) window(today time.Time) daterange.Window {
	opt := daterange.ParseOption(rq.Option)
	if rq.Option == "" && (rq.Start != "" || rq.End != "") {
		opt = daterange.Custom
	}
	return daterange.Resolve(opt, &daterange.Bounds{Start: rq.Start, End: rq.End}, today)
}

func (sr saveRequest) records() []attendance.NewRecord {
	if len(sr.Records) > 0 {
		return sr.Records
	}
	return []attendance.NewRecord{sr.NewRecord}
}

func (tr teacherRecord) newRecord() attendance.NewRecord {
	return attendance.NewRecord{
		SubjectID:   tr.TeacherID,
		Date:        tr.Date,
		Status:      tr.Status,
		Remarks:     tr.Remarks,
		CheckedInAt: tr.CheckedInAt,
	}
}

func (sr teacherSaveRequest) records() []attendance.NewRecord {
	if len(sr.Records) == 0 {
		return []attendance.NewRecord{sr.teacherRecord.newRecord()}
	}
	nrs := make([]attendance.NewRecord, 0, len(sr.Records))
	for _, tr := range sr.Records {
		nrs = append(nrs, tr.newRecord())
	}
	return nrs
}

func (lr *lateReasonRequest) Validate(validate *validator.Validate) error {
	if lr.SubjectID == "" {
		lr.SubjectID = lr.TeacherID
	}
	return lr.NewLateReason.Validate(validate)
}

func (er *expectedTimeRequest) Validate(validate *validator.Validate) error {
	er.ExpectedTime = core.CleanString(er.ExpectedTime)
	return validate.Struct(er)
}
