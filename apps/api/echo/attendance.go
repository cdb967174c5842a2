package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/clock"
	"github.com/trezcool/mahudhurio/core/daterange"
	"github.com/trezcool/mahudhurio/core/dates"
	"github.com/trezcool/mahudhurio/core/grid"
)

type attendanceApi struct {
	svc        *attendance.Service
	clock      clock.Clock
	validate   *validator.Validate
	translator ut.Translator
}

func registerAttendanceAPI(
	g *echo.Group,
	svc *attendance.Service,
	clk clock.Clock,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := attendanceApi{
		svc:        svc,
		clock:      clk,
		validate:   validate,
		translator: translator,
	}

	ag := g.Group("/attendance")
	ag.GET("", api.query(attendance.KindStudent))
	ag.POST("", api.create)
	ag.POST("/cycle", api.cycle)
	ag.POST("/mark", api.mark, adminMiddleware)
	ag.GET("/range", api.resolveRange)
	ag.GET("/grid", api.grid)
	ag.GET("/summary", api.summary)
	api.registerDetail(ag)
	ag.PUT("/:id/remarks", api.updateRemarks)
	ag.PUT("/:id/approval", api.review, adminMiddleware)

	tg := g.Group("/teacher-attendance")
	tg.GET("", api.query(attendance.KindTeacher))
	tg.POST("", api.createTeacher)
	tg.GET("/expected-time/:teacher_id", api.expectedTime)
	tg.PUT("/expected-time/:teacher_id", api.setExpectedTime, adminMiddleware)
	api.registerDetail(tg)

	g.POST("/late-reason", api.submitLateReason)
}

// registerDetail adds the by-id endpoints; ids are unique across kinds.
func (api *attendanceApi) registerDetail(g *echo.Group) {
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
	g.PUT("/:id/checkout", api.checkOut)
}

// Handlers

func (api *attendanceApi) query(kind attendance.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		filter, err := api.bindFilter(ctx, kind)
		if err != nil {
			return err
		}

		recs, err := api.svc.Query(ctx.Request().Context(), getContextSession(ctx), filter)
		if err != nil {
			return errors.Wrap(err, "querying attendance")
		}
		if recs == nil {
			recs = []attendance.Record{}
		}
		return ctx.JSON(http.StatusOK, ListResponse{Attendance: recs})
	}
}

func (api *attendanceApi) bindFilter(ctx echo.Context, kind attendance.Kind) (attendance.QueryFilter, error) {
	var q attendanceQuery
	if err := ctx.Bind(&q); err != nil {
		return attendance.QueryFilter{}, errors.Wrap(err, "binding to attendanceQuery")
	}
	filter := q.filter(kind, api.svc.Today())
	if err := filter.Validate(api.validate); err != nil {
		return attendance.QueryFilter{}, err
	}
	return filter, nil
}

func (api *attendanceApi) create(ctx echo.Context) error {
	var data saveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to saveRequest")
	}
	return api.save(ctx, attendance.KindStudent, data.records(), len(data.Records) > 0)
}

func (api *attendanceApi) createTeacher(ctx echo.Context) error {
	var data teacherSaveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to teacherSaveRequest")
	}
	return api.save(ctx, attendance.KindTeacher, data.records(), len(data.Records) > 0)
}

func (api *attendanceApi) save(ctx echo.Context, kind attendance.Kind, nrs []attendance.NewRecord, batch bool) error {
	for i := range nrs {
		if err := nrs[i].Validate(api.validate); err != nil {
			return err
		}
	}

	results, err := api.svc.Save(ctx.Request().Context(), getContextSession(ctx), kind, nrs...)
	if err != nil {
		return errors.Wrap(err, "saving attendance")
	}
	if batch {
		return ctx.JSON(http.StatusCreated, BatchResponse{Results: results})
	}
	return ctx.JSON(http.StatusCreated, results[0])
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.Get(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	var data attendance.UpdateRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Update(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	if data.Status == attendance.StatusNone {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	if err := api.svc.Clear(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "clearing record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) cycle(ctx echo.Context) error {
	var data attendance.CycleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CycleRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Cycle(ctx.Request().Context(), getContextSession(ctx), data)
	if err != nil {
		return errors.Wrap(err, "cycling status")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Mark(ctx.Request().Context(), getContextSession(ctx), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) updateRemarks(ctx echo.Context) error {
	var data attendance.UpdateRemarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRemarks")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.UpdateRemarks(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating remarks")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) review(ctx echo.Context) error {
	var data attendance.ReviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Review(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) checkOut(ctx echo.Context) error {
	rec, err := api.svc.CheckOut(ctx.Request().Context(), getContextSession(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) submitLateReason(ctx echo.Context) error {
	var data lateReasonRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to lateReasonRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lr, err := api.svc.SubmitLateReason(ctx.Request().Context(), getContextSession(ctx), data.NewLateReason)
	if err != nil {
		return errors.Wrap(err, "submitting late reason")
	}
	return ctx.JSON(http.StatusCreated, lr)
}

func (api *attendanceApi) expectedTime(ctx echo.Context) error {
	teacherID := ctx.Param("teacher_id")
	sess := getContextSession(ctx)
	if !(sess.IsAdmin() || (sess.IsTeacher() && sess.TeacherID == teacherID)) {
		return errHttpForbidden
	}

	expected, err := api.svc.ExpectedTime(ctx.Request().Context(), attendance.KindTeacher, teacherID)
	if err != nil {
		return errors.Wrap(err, "getting expected time")
	}
	return ctx.JSON(http.StatusOK, ExpectedTimeResponse{TeacherID: teacherID, ExpectedTime: expected.String()})
}

func (api *attendanceApi) setExpectedTime(ctx echo.Context) error {
	var data expectedTimeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to expectedTimeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacherID := ctx.Param("teacher_id")
	err := api.svc.SetExpectedTime(ctx.Request().Context(), getContextSession(ctx), teacherID, data.ExpectedTime)
	if err != nil {
		return errors.Wrap(err, "setting expected time")
	}
	return ctx.JSON(http.StatusOK, ExpectedTimeResponse{TeacherID: teacherID, ExpectedTime: data.ExpectedTime})
}

func (api *attendanceApi) resolveRange(ctx echo.Context) error {
	var q rangeQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to rangeQuery")
	}
	if err := q.Validate(api.validate); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.window(q))
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx, kindParam(ctx))
	if err != nil {
		return err
	}

	summaries, err := api.svc.Summarize(ctx.Request().Context(), getContextSession(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, SummaryResponse{Summary: summaries})
}

// grid returns one row of cells per requested subject over the selected window.
func (api *attendanceApi) grid(ctx echo.Context) error {
	var q rangeQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to rangeQuery")
	}
	if err := q.Validate(api.validate); err != nil {
		return err
	}
	filter, err := api.bindFilter(ctx, kindParam(ctx))
	if err != nil {
		return err
	}
	if len(filter.SubjectIDs) == 0 {
		return errHttpSubjectRequired
	}

	sess := getContextSession(ctx)
	rng := api.window(q)
	if err := api.svc.CheckGridSpan(rng); err != nil {
		return err
	}
	filter.StartDate = rng.StartKey()
	filter.EndDate = rng.EndKey()

	recs, err := api.svc.Query(ctx.Request().Context(), sess, filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	bySubject := make(map[string][]attendance.Record, len(filter.SubjectIDs))
	for _, rec := range recs {
		bySubject[rec.SubjectID] = append(bySubject[rec.SubjectID], rec)
	}

	opts := grid.Options{Calendar: api.svc.Calendar(), Clock: api.clock, Session: sess}
	res := GridResponse{Window: rng, Rows: make([]GridRow, 0, len(filter.SubjectIDs))}
	for _, subjectID := range filter.SubjectIDs {
		w := grid.FromRange(rng, opts)
		w.SetRecords(bySubject[subjectID])
		res.Rows = append(res.Rows, GridRow{SubjectID: subjectID, Cells: w.Cells()})
	}
	return ctx.JSON(http.StatusOK, res)
}

// window resolves q; start plus days selects that many days from start.
func (api *attendanceApi) window(q rangeQuery) daterange.Window {
	today := api.svc.Today()
	if days := q.days(); days > 0 && q.Start != "" && q.End == "" {
		start, err := dates.Parse(q.Start, today.Location())
		if err == nil {
			q.Option = string(daterange.Custom)
			q.End = dates.Key(dates.AddDays(start, days-1))
		}
	}
	return q.window(today)
}

func kindParam(ctx echo.Context) attendance.Kind {
	if attendance.Kind(ctx.QueryParam("kind")) == attendance.KindTeacher {
		return attendance.KindTeacher
	}
	return attendance.KindStudent
}

type (
	ListResponse struct {
		Attendance []attendance.Record `json:"attendance"`
	}

	BatchResponse struct {
		Results []attendance.WriteResult `json:"results"`
	}

	SummaryResponse struct {
		Summary []attendance.Summary `json:"summary"`
	}

	ExpectedTimeResponse struct {
		TeacherID    string `json:"teacher_id"`
		ExpectedTime string `json:"expected_time"`
	}

	GridRow struct {
		SubjectID string      `json:"subject_id"`
		Cells     []grid.Cell `json:"cells"`
	}

	GridResponse struct {
		Window daterange.Window `json:"window"`
		Rows   []GridRow        `json:"rows"`
	}
)
