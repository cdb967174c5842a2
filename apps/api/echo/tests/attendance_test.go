package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	testutil "github.com/trezcool/mahudhurio/tests"
)

type gridCell struct {
	Date            string             `json:"date"`
	Record          *attendance.Record `json:"record"`
	OffDay          bool               `json:"off_day"`
	IsToday         bool               `json:"is_today"`
	Editable        bool               `json:"editable"`
	Locked          bool               `json:"locked"`
	CanCycle        bool               `json:"can_cycle"`
	ShowReasonEntry bool               `json:"show_reason_entry"`
}

type windowJSON struct {
	Option   string `json:"option"`
	Start    string `json:"start"`
	End      string `json:"end"`
	DayCount int    `json:"day_count"`
	Label    string `json:"label"`
}

func TestAttendancePermissions(t *testing.T) {
	f := setup(t)
	principal := &user.Session{UserID: "u-principal", Roles: []string{user.RoleAdminPrincipal}}
	rec := testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindStudent, SubjectID: "s-2", ClassID: "c-2", Date: "2024-06-14", Status: attendance.StatusPresent,
	})
	today := map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14", "status": "present"}

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/attendance", wantCode: http.StatusUnauthorized},
		{name: "students cannot write", method: http.MethodPost, path: "/v1/attendance", sess: student, body: today, wantCode: http.StatusForbidden},
		{
			name: "teachers only write their classes", method: http.MethodPost, path: "/v1/attendance", sess: teacher,
			body:     map[string]string{"subject_id": "s-2", "class_id": "c-2", "date": "2024-06-14", "status": "present"},
			wantCode: http.StatusForbidden,
		},
		{
			name: "teachers cannot pull records into their classes", method: http.MethodPost, path: "/v1/attendance", sess: teacher,
			body:     map[string]string{"subject_id": "s-2", "class_id": "c-1", "date": "2024-06-14", "status": "absent"},
			wantCode: http.StatusForbidden,
		},
		{name: "teachers only read their classes", method: http.MethodGet, path: "/v1/attendance?class_id=c-2", sess: teacher, wantCode: http.StatusForbidden},
		{name: "records of other classes are hidden", method: http.MethodGet, path: "/v1/attendance/" + rec.ID, sess: teacher, wantCode: http.StatusForbidden},
		{name: "unknown record", method: http.MethodGet, path: "/v1/attendance/nope", sess: admin, wantCode: http.StatusNotFound},
		{name: "mark requires admin", method: http.MethodPost, path: "/v1/attendance/mark", sess: teacher, body: today, wantCode: http.StatusForbidden},
		{
			name: "review requires admin", method: http.MethodPut, path: "/v1/attendance/" + rec.ID + "/approval", sess: teacher,
			body: map[string]string{"approval_status": "approved"}, wantCode: http.StatusForbidden,
		},
		{
			name: "expected time requires admin", method: http.MethodPut, path: "/v1/teacher-attendance/expected-time/t-1", sess: teacher,
			body: map[string]string{"expected_time": "09:00"}, wantCode: http.StatusForbidden,
		},
		{
			name: "any admin role sets expected time", method: http.MethodPut, path: "/v1/teacher-attendance/expected-time/t-1", sess: principal,
			body: map[string]string{"expected_time": "09:00"}, wantCode: http.StatusOK,
		},
		{name: "students read their own", method: http.MethodGet, path: "/v1/attendance", sess: student, wantCode: http.StatusOK},
		{name: "admins read everything", method: http.MethodGet, path: "/v1/attendance/" + rec.ID, sess: admin, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, tt.method, tt.path, tt.sess, tt.body)
			assert.Equal(t, tt.wantCode, res.Code, res.Body.String())
		})
	}
}

func TestAttendanceCreate(t *testing.T) {
	f := setup(t)

	// single
	res := f.do(t, http.MethodPost, "/v1/attendance", teacher,
		map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14", "status": "present"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var single attendance.WriteResult
	decode(t, res, &single)
	assert.NotEmpty(t, single.Record.ID)
	assert.Equal(t, attendance.StatusPresent, single.Record.Status)
	assert.Equal(t, testutil.Teacher.UserID, single.Record.MarkedBy)

	// batch, the check-in instant is converted to its local day
	res = f.do(t, http.MethodPost, "/v1/attendance", teacher, map[string]interface{}{
		"records": []map[string]string{
			{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14", "status": "absent"},
			{"subject_id": "s-3", "class_id": "c-1", "created_at": "2024-06-13T22:30:00-05:00", "status": "leave", "remarks": "clinic"},
		},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var batch echoapi.BatchResponse
	decode(t, res, &batch)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, single.Record.ID, batch.Results[0].Record.ID, "upsert keeps one record per day")
	assert.Equal(t, attendance.StatusAbsent, batch.Results[0].Record.Status)
	assert.Equal(t, "2024-06-14", batch.Results[1].Record.Date)
	assert.Equal(t, attendance.FollowUpNone, batch.Results[1].FollowUp)
	assert.Equal(t, 1, f.outbox.Len(), "leave remarks notify the office")

	res = f.do(t, http.MethodGet, "/v1/attendance?class_id=c-1&start_date=2024-06-10&end_date=2024-06-14", teacher, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var list echoapi.ListResponse
	decode(t, res, &list)
	assert.Len(t, list.Attendance, 2)

	res = f.do(t, http.MethodGet, "/v1/attendance?class_id=c-1&status=leave&range=last7", teacher, nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &list)
	if assert.Len(t, list.Attendance, 1) {
		assert.Equal(t, "s-3", list.Attendance[0].SubjectID)
	}
}

func TestAttendanceCreateValidation(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErrs map[string]string
	}{
		{
			name:     "missing fields",
			body:     map[string]string{"date": "2024-06-14"},
			wantCode: http.StatusBadRequest,
			wantErrs: map[string]string{"subject_id": "this field is required", "status": "this field is required"},
		},
		{
			name:     "missing date and check-in",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "status": "present"},
			wantCode: http.StatusBadRequest,
			wantErrs: map[string]string{"date": "this field is required"},
		},
		{
			name:     "malformed date",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "14/06/2024", "status": "present"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown status",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14", "status": "excused"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "off day",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-09", "status": "present"},
			wantCode: http.StatusConflict,
			wantErrs: map[string]string{"error": attendance.ErrNotEditable.Error()},
		},
		{
			name:     "past day for a teacher",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-13", "status": "present"},
			wantCode: http.StatusConflict,
		},
		{
			name:     "late cannot be set by a teacher",
			body:     map[string]string{"subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14", "status": "late"},
			wantCode: http.StatusConflict,
			wantErrs: map[string]string{"error": attendance.ErrInvalidTransition.Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodPost, "/v1/attendance", teacher, tt.body)
			require.Equal(t, tt.wantCode, res.Code, res.Body.String())
			if tt.wantErrs != nil {
				var errs map[string]string
				decode(t, res, &errs)
				assert.Equal(t, tt.wantErrs, errs)
			}
		})
	}

	res := f.do(t, http.MethodGet, "/v1/attendance?class_id=c-1", teacher, nil)
	var list echoapi.ListResponse
	decode(t, res, &list)
	assert.Empty(t, list.Attendance, "failed writes must not change anything")
}

func TestAttendanceCycleAndReview(t *testing.T) {
	f := setup(t)
	cell := map[string]string{"kind": "student", "subject_id": "s-1", "class_id": "c-1", "date": "2024-06-14"}

	want := []attendance.Status{attendance.StatusPresent, attendance.StatusAbsent, attendance.StatusLeave}
	var res attendance.WriteResult
	for _, st := range want {
		rec := f.do(t, http.MethodPost, "/v1/attendance/cycle", teacher, cell)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &res)
		assert.Equal(t, st, res.Record.Status)
	}
	assert.Equal(t, attendance.FollowUpLeaveReason, res.FollowUp)
	id := res.Record.ID

	rec := f.do(t, http.MethodPut, "/v1/attendance/"+id+"/remarks", student, map[string]string{"remarks": "fever"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.outbox.Len())

	rec = f.do(t, http.MethodPut, "/v1/attendance/"+id+"/approval", admin, map[string]string{"approval_status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reviewed attendance.Record
	decode(t, rec, &reviewed)
	assert.Equal(t, attendance.ApprovalApproved, reviewed.ApprovalStatus)
	assert.Equal(t, "fever", reviewed.Remarks)

	rec = f.do(t, http.MethodPost, "/v1/attendance/cycle", teacher, cell)
	assert.Equal(t, http.StatusForbidden, rec.Code, "reviewed records are locked for teachers")

	rec = f.do(t, http.MethodPost, "/v1/attendance/cycle", admin, cell)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)
	assert.Equal(t, attendance.ApprovalNone, res.Record.ApprovalStatus)
	assert.Empty(t, res.Record.Remarks)

	rec = f.do(t, http.MethodPost, "/v1/attendance/cycle", teacher,
		map[string]string{"kind": "student", "subject_id": "s-1", "class_id": "c-1", "date": "2024-06-15"})
	assert.Equal(t, http.StatusConflict, rec.Code, "future days are not editable")
}

func TestAttendanceUpdateAndClear(t *testing.T) {
	f := setup(t)
	created := testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindStudent, SubjectID: "s-1", ClassID: "c-1", Date: "2024-06-14", Status: attendance.StatusPresent,
	})

	rec := f.do(t, http.MethodPut, "/v1/attendance/"+created.ID, teacher, map[string]string{"status": "leave", "remarks": "wedding"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res attendance.WriteResult
	decode(t, rec, &res)
	assert.Equal(t, attendance.StatusLeave, res.Record.Status)
	assert.Equal(t, "wedding", res.Record.Remarks)

	rec = f.do(t, http.MethodPut, "/v1/attendance/"+created.ID+"/checkout", teacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "only present or late subjects check out")

	rec = f.do(t, http.MethodPut, "/v1/attendance/"+created.ID, teacher, map[string]string{"status": ""})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/attendance/"+created.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "a cleared day has no record")

	again := testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindStudent, SubjectID: "s-1", ClassID: "c-1", Date: "2024-06-14", Status: attendance.StatusPresent,
	})
	rec = f.do(t, http.MethodPut, "/v1/attendance/"+again.ID+"/checkout", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out attendance.Record
	decode(t, rec, &out)
	if assert.NotNil(t, out.OutTime) {
		assert.True(t, now.Equal(*out.OutTime))
	}

	rec = f.do(t, http.MethodDelete, "/v1/attendance/"+again.ID, teacher, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTeacherAttendance(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/teacher-attendance", teacher,
		map[string]string{"teacher_id": "t-1", "date": "2024-06-14", "status": "present"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res attendance.WriteResult
	decode(t, rec, &res)
	assert.Equal(t, attendance.KindTeacher, res.Record.Kind)
	assert.Equal(t, "t-1", res.Record.SubjectID)
	// 10:30 is past the default 08:00 plus grace
	assert.Equal(t, attendance.StatusLate, res.Record.Status)
	assert.Equal(t, attendance.FollowUpLateReason, res.FollowUp)

	rec = f.do(t, http.MethodPost, "/v1/teacher-attendance", teacher,
		map[string]string{"teacher_id": "t-2", "date": "2024-06-14", "status": "present"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindTeacher, SubjectID: "t-2", Date: "2024-06-14", Status: attendance.StatusAbsent,
	})
	rec = f.do(t, http.MethodGet, "/v1/teacher-attendance?teacher_id=t-2", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list echoapi.ListResponse
	decode(t, rec, &list)
	if assert.Len(t, list.Attendance, 1, "teachers only see their own attendance") {
		assert.Equal(t, "t-1", list.Attendance[0].SubjectID)
	}

	rec = f.do(t, http.MethodGet, "/v1/teacher-attendance?teacher_id=t-2", admin, nil)
	decode(t, rec, &list)
	assert.Len(t, list.Attendance, 1)
}

func TestMarkLateAndReason(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPut, "/v1/teacher-attendance/expected-time/t-1", admin, map[string]string{"expected_time": "10:20"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/teacher-attendance/expected-time/t-1", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var expected echoapi.ExpectedTimeResponse
	decode(t, rec, &expected)
	assert.Equal(t, "10:20", expected.ExpectedTime)

	rec = f.do(t, http.MethodGet, "/v1/teacher-attendance/expected-time/t-2", teacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 10:30 is within 15 minutes of 10:20
	mark := map[string]string{"kind": "teacher", "subject_id": "t-1", "date": "2024-06-14", "status": "present"}
	rec = f.do(t, http.MethodPost, "/v1/attendance/mark", admin, mark)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res attendance.WriteResult
	decode(t, rec, &res)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)

	rec = f.do(t, http.MethodPost, "/v1/late-reason", teacher,
		map[string]string{"teacher_id": "t-1", "date": "2024-06-14", "reason": "traffic"})
	assert.Equal(t, http.StatusConflict, rec.Code, "only late records take a late reason")

	f.clock.Add(10 * time.Minute)
	rec = f.do(t, http.MethodPost, "/v1/attendance/mark", admin, mark)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.Equal(t, attendance.StatusLate, res.Record.Status)
	assert.Equal(t, attendance.FollowUpLateReason, res.FollowUp)

	rec = f.do(t, http.MethodPost, "/v1/late-reason", teacher,
		map[string]string{"teacher_id": "t-1", "date": "2024-06-14", "reason": "traffic"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lr attendance.LateReason
	decode(t, rec, &lr)
	assert.Equal(t, "traffic", lr.Reason)
	assert.Equal(t, attendance.KindTeacher, lr.Kind)

	// admins mark any past working day, never a future one
	mark["date"] = "2024-06-03"
	rec = f.do(t, http.MethodPost, "/v1/attendance/mark", admin, mark)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status, "late only applies to the current day")

	mark["date"] = "2024-06-17"
	rec = f.do(t, http.MethodPost, "/v1/attendance/mark", admin, mark)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResolveRange(t *testing.T) {
	f := setup(t)
	tests := []struct {
		query string
		want  windowJSON
	}{
		{
			query: "option=lastMonth",
			want:  windowJSON{Option: "lastMonth", Start: "2024-05-01", End: "2024-05-31", DayCount: 31, Label: "May 2024"},
		},
		{
			query: "option=currentMonth",
			want:  windowJSON{Option: "currentMonth", Start: "2024-06-01", End: "2024-06-14", DayCount: 14, Label: "2024-06-01 — 2024-06-14"},
		},
		{
			query: "option=bogus",
			want:  windowJSON{Option: "last7", Start: "2024-06-08", End: "2024-06-14", DayCount: 7, Label: "2024-06-08 — 2024-06-14"},
		},
		{
			query: "start=2024-06-03&end=2024-06-05",
			want:  windowJSON{Option: "custom", Start: "2024-06-03", End: "2024-06-05", DayCount: 3, Label: "2024-06-03 — 2024-06-05"},
		},
		{
			query: "option=custom&start=2024-06-05&end=2024-06-03",
			want:  windowJSON{Option: "custom", Start: "2024-06-05", End: "2024-06-03", DayCount: 1, Label: "2024-06-05 — 2024-06-03"},
		},
		{
			query: "start=2024-06-10&days=3",
			want:  windowJSON{Option: "custom", Start: "2024-06-10", End: "2024-06-12", DayCount: 3, Label: "2024-06-10 — 2024-06-12"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/attendance/range?"+tt.query, student, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var got windowJSON
			decode(t, rec, &got)
			assert.Equal(t, tt.want, got)
		})
	}

	rec := f.do(t, http.MethodGet, "/v1/attendance/range?start=yesterday", student, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrid(t *testing.T) {
	f := setup(t)
	testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindStudent, SubjectID: "s-1", ClassID: "c-1", Date: "2024-06-11",
		Status: attendance.StatusLeave, Remarks: "trip",
	})
	testutil.CreateRecord(t, f.repo, attendance.Record{
		Kind: attendance.KindStudent, SubjectID: "s-1", ClassID: "c-1", Date: "2024-06-14", Status: attendance.StatusPresent,
	})

	rec := f.do(t, http.MethodGet, "/v1/attendance/grid?class_id=c-1&student_id=s-1&student_id=s-2&start=2024-06-08&days=7", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Window windowJSON `json:"window"`
		Rows   []struct {
			SubjectID string     `json:"subject_id"`
			Cells     []gridCell `json:"cells"`
		} `json:"rows"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "2024-06-08", res.Window.Start)
	assert.Equal(t, "2024-06-14", res.Window.End)
	require.Len(t, res.Rows, 2)

	cells := res.Rows[0].Cells
	require.Len(t, cells, 7)
	byDate := make(map[string]gridCell, len(cells))
	for _, c := range cells {
		byDate[c.Date] = c
	}
	assert.True(t, byDate["2024-06-09"].OffDay, "sunday")
	assert.True(t, byDate["2024-06-12"].OffDay, "holiday")
	assert.True(t, byDate["2024-06-14"].IsToday)
	assert.True(t, byDate["2024-06-14"].Editable)
	assert.False(t, byDate["2024-06-13"].Editable, "teachers only edit today")
	if assert.NotNil(t, byDate["2024-06-11"].Record) {
		assert.Equal(t, attendance.StatusLeave, byDate["2024-06-11"].Record.Status)
		assert.True(t, byDate["2024-06-11"].ShowReasonEntry)
	}
	for _, c := range res.Rows[1].Cells {
		assert.Nil(t, c.Record, "s-2 has no records")
	}

	rec = f.do(t, http.MethodGet, "/v1/attendance/grid?class_id=c-1", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGridSpanLimit(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name     string
		query    string
		wantCode int
	}{
		{name: "a year", query: "start=2023-06-15&days=366", wantCode: http.StatusOK},
		{name: "start plus too many days", query: "start=2023-06-15&days=367", wantCode: http.StatusBadRequest},
		{name: "whole calendar", query: "option=custom&start=0001-01-01&end=9999-12-31", wantCode: http.StatusBadRequest},
		{name: "overflowing days", query: "start=2024-06-01&days=99999999999999999999", wantCode: http.StatusBadRequest},
		{name: "zero days", query: "start=2024-06-01&days=0", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/attendance/grid?class_id=c-1&student_id=s-1&"+tt.query, teacher, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestSummary(t *testing.T) {
	f := setup(t)
	for _, r := range []struct {
		subject, date string
		status        attendance.Status
	}{
		{"s-1", "2024-06-10", attendance.StatusPresent},
		{"s-1", "2024-06-11", attendance.StatusAbsent},
		{"s-1", "2024-06-13", attendance.StatusPresent},
		{"s-2", "2024-06-13", attendance.StatusLate},
	} {
		testutil.CreateRecord(t, f.repo, attendance.Record{
			Kind: attendance.KindStudent, SubjectID: r.subject, ClassID: "c-1", Date: r.date, Status: r.status,
		})
	}

	rec := f.do(t, http.MethodGet, "/v1/attendance/summary?class_id=c-1&range=last7", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.SummaryResponse
	decode(t, rec, &res)
	assert.Equal(t, []attendance.Summary{
		{SubjectID: "s-1", Present: 2, Absent: 1, Total: 3},
		{SubjectID: "s-2", Late: 1, Total: 1},
	}, res.Summary)
}
