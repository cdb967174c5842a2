package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/dates"
)

// Kind tells whose attendance a record tracks.
type Kind string

const (
	KindStudent Kind = "student"
	KindTeacher Kind = "teacher"
)

type Status string

const (
	StatusNone    Status = ""
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLeave   Status = "leave"
	StatusLate    Status = "late"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLeave, StatusLate}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ApprovalStatus is an admin's disposition on a leave.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// FollowUp names the reason collection flow a caller must run after a successful write.
type FollowUp string

const (
	FollowUpNone        FollowUp = ""
	FollowUpLeaveReason FollowUp = "leave_reason"
	FollowUpLateReason  FollowUp = "late_reason"
)

// Record is one subject's attendance on one local calendar day. There is at most one per (Kind, SubjectID, Date).
type Record struct {
	ID             string         `json:"id,omitempty"`
	Kind           Kind           `json:"kind"`
	SubjectID      string         `json:"subject_id"`
	ClassID        string         `json:"class_id,omitempty"`
	Date           string         `json:"date"` // YYYY-MM-DD, local
	Status         Status         `json:"status"`
	Remarks        string         `json:"remarks,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`
	ReviewedBy     string         `json:"reviewed_by,omitempty"`
	MarkedBy       string         `json:"marked_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"` // UTC
	UpdatedAt      time.Time      `json:"updated_at"` // UTC
	OutTime        *time.Time     `json:"out_time,omitempty"`
}

// Locked reports whether an admin already reviewed the record. Only admins may change a locked record.
func (r Record) Locked() bool { return r.ApprovalStatus != ApprovalNone }

// NeedsReason reports whether the record is a leave still waiting for review.
func (r Record) NeedsReason() bool { return r.Status == StatusLeave && !r.Locked() }

// setStatus changes the status, dropping what only made sense for the previous one.
func (r *Record) setStatus(st Status) {
	if r.Status != st {
		r.ApprovalStatus = ApprovalNone
		r.ReviewedBy = ""
	}
	r.Status = st
	if st != StatusLeave {
		r.Remarks = ""
	}
}

// NewRecord contains information needed to create or replace a Record.
// Date may be omitted when CheckedInAt is given; the check-in instant's local day is used then.
type NewRecord struct {
	SubjectID   string     `json:"subject_id" validate:"required,notblank"`
	ClassID     string     `json:"class_id"`
	Date        string     `json:"date" validate:"omitempty,isodate"`
	Status      Status     `json:"status" validate:"required,attstatus"`
	Remarks     string     `json:"remarks"`
	CheckedInAt *time.Time `json:"created_at"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.SubjectID = core.CleanString(nr.SubjectID)
	nr.ClassID = core.CleanString(nr.ClassID)
	nr.Date = core.CleanString(nr.Date)
	nr.Remarks = core.CleanString(nr.Remarks)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if nr.Date == "" && nr.CheckedInAt == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "this field is required"})
	}
	return nil
}

// dateKey resolves the record's calendar day in loc.
func (nr NewRecord) dateKey(loc *time.Location) string {
	if nr.Date == "" && nr.CheckedInAt != nil {
		return dates.LocalKey(*nr.CheckedInAt, loc)
	}
	return nr.Date
}

// UpdateRecord defines what may be changed on an existing Record. An empty Status clears the record.
type UpdateRecord struct {
	Status  Status `json:"status" validate:"omitempty,attstatus"`
	Remarks string `json:"remarks"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.Remarks = core.CleanString(ur.Remarks)
	return validate.Struct(ur)
}

// CycleRequest identifies the cell whose status control was clicked.
type CycleRequest struct {
	Kind      Kind   `json:"kind" validate:"required,attkind"`
	SubjectID string `json:"subject_id" validate:"required,notblank"`
	ClassID   string `json:"class_id"`
	Date      string `json:"date" validate:"required,isodate"`
}

func (cr *CycleRequest) Validate(validate *validator.Validate) error {
	cr.SubjectID = core.CleanString(cr.SubjectID)
	cr.ClassID = core.CleanString(cr.ClassID)
	cr.Date = core.CleanString(cr.Date)
	return validate.Struct(cr)
}

// MarkRequest is an admin setting the status of any (non off) past or present day.
type MarkRequest struct {
	Kind      Kind   `json:"kind" validate:"required,attkind"`
	SubjectID string `json:"subject_id" validate:"required,notblank"`
	ClassID   string `json:"class_id"`
	Date      string `json:"date" validate:"required,isodate"`
	Status    Status `json:"status" validate:"required,attstatus"`
	Remarks   string `json:"remarks"`
	// ExpectedTime overrides the subject's expected arrival time (HH:MM).
	ExpectedTime string `json:"expected_time" validate:"omitempty,clock"`
}

func (mr *MarkRequest) Validate(validate *validator.Validate) error {
	mr.SubjectID = core.CleanString(mr.SubjectID)
	mr.ClassID = core.CleanString(mr.ClassID)
	mr.Date = core.CleanString(mr.Date)
	mr.Remarks = core.CleanString(mr.Remarks)
	return validate.Struct(mr)
}

type UpdateRemarks struct {
	Remarks string `json:"remarks" validate:"required,notblank"`
}

func (ur *UpdateRemarks) Validate(validate *validator.Validate) error {
	ur.Remarks = core.CleanString(ur.Remarks)
	return validate.Struct(ur)
}

type ReviewRequest struct {
	ApprovalStatus ApprovalStatus `json:"approval_status" validate:"required,approval"`
}

func (rr ReviewRequest) Validate(validate *validator.Validate) error { return validate.Struct(rr) }

// WriteResult is a persisted record plus the follow-up the caller must trigger.
type WriteResult struct {
	Record   Record   `json:"record"`
	FollowUp FollowUp `json:"follow_up,omitempty"`
}

// LateReason explains why a subject arrived late on a given day.
type LateReason struct {
	ID        string    `json:"id,omitempty"`
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subject_id"`
	Date      string    `json:"date"`
	Reason    string    `json:"reason"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewLateReason struct {
	Kind      Kind   `json:"kind" validate:"omitempty,attkind"`
	SubjectID string `json:"subject_id" validate:"required,notblank"`
	Date      string `json:"date" validate:"required,isodate"`
	Reason    string `json:"reason" validate:"required,notblank"`
}

func (nl *NewLateReason) Validate(validate *validator.Validate) error {
	if nl.Kind == "" {
		nl.Kind = KindTeacher
	}
	nl.SubjectID = core.CleanString(nl.SubjectID)
	nl.Date = core.CleanString(nl.Date)
	nl.Reason = core.CleanString(nl.Reason)
	return validate.Struct(nl)
}

// QueryFilter applies AND on the set fields. Dates are inclusive YYYY-MM-DD bounds.
type QueryFilter struct {
	Kind       Kind     `query:"-"`
	SubjectIDs []string `query:"subject_id"`
	ClassID    string   `query:"class_id"`
	StartDate  string   `query:"start_date" validate:"omitempty,isodate"`
	EndDate    string   `query:"end_date" validate:"omitempty,isodate"`
	Statuses   []Status `query:"status" validate:"omitempty,dive,attstatus"`
}

func (qf *QueryFilter) Validate(validate *validator.Validate) error {
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.StartDate = core.CleanString(qf.StartDate)
	qf.EndDate = core.CleanString(qf.EndDate)
	return validate.Struct(qf)
}

// Summary counts a subject's statuses over a window.
type Summary struct {
	SubjectID string `json:"subject_id"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Leave     int    `json:"leave"`
	Late      int    `json:"late"`
	Total     int    `json:"total"`
}

func (s *Summary) add(st Status) {
	switch st {
	case StatusPresent:
		s.Present++
	case StatusAbsent:
		s.Absent++
	case StatusLeave:
		s.Leave++
	case StatusLate:
		s.Late++
	}
	s.Total++
}
