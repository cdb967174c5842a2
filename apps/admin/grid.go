package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/daterange"
	"github.com/trezcool/mahudhurio/core/dates"
	"github.com/trezcool/mahudhurio/core/grid"
)

// waitFunc blocks while a watched grid is mounted. mockable
var waitFunc = func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	signal.Stop(sig)
}

func (cli *commandLine) grid(args []string) error {
	cmd := cli.newFlagSet("grid")
	subject := cmd.String("subject", "", "student or teacher id")
	kind := cmd.String("kind", string(attendance.KindStudent), "student or teacher")
	option := cmd.String("option", string(daterange.Default), "range option, ignored with -start")
	start := cmd.String("start", "", "first visible day (YYYY-MM-DD)")
	days := cmd.Int("days", grid.DefaultDayCount, "visible days with -start")
	watch := cmd.Bool("watch", false, "keep the grid mounted and print it again after every midnight")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *subject == "" {
		cmd.Usage()
		return errHelp
	}

	today := cli.svc.Today()
	rng := daterange.Resolve(daterange.ParseOption(*option), nil, today)
	if *start != "" {
		first, err := dates.Parse(*start, today.Location())
		if err != nil {
			return err
		}
		rng = daterange.Resolve(daterange.Custom, &daterange.Bounds{
			Start: *start,
			End:   dates.Key(dates.AddDays(first, *days-1)),
		}, today)
	}
	if err := cli.svc.CheckGridSpan(rng); err != nil {
		return err
	}

	ctx := context.Background()
	filter := attendance.QueryFilter{Kind: attendance.Kind(*kind), SubjectIDs: []string{*subject}}

	var mu sync.Mutex
	var w *grid.Window
	var renderErr error
	refresh := func(first, last time.Time) {
		mu.Lock()
		defer mu.Unlock()
		if renderErr = cli.fetch(ctx, w, filter, first, last); renderErr == nil {
			renderErr = cli.render(w)
		}
	}

	opts := grid.Options{Calendar: cli.svc.Calendar(), Clock: cli.clock, Session: cliSession}
	if *watch {
		opts.OnNavigate = refresh
	}
	w = grid.FromRange(rng, opts)
	refresh(w.Bounds())
	if renderErr != nil || !*watch {
		return renderErr
	}

	w.Mount()
	defer w.Unmount()
	waitFunc()

	mu.Lock()
	defer mu.Unlock()
	return renderErr
}

func (cli *commandLine) fetch(ctx context.Context, w *grid.Window, filter attendance.QueryFilter, first, last time.Time) error {
	filter.StartDate = dates.Key(first)
	filter.EndDate = dates.Key(last)
	recs, err := cli.svc.Query(ctx, cliSession, filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	w.SetRecords(recs)
	return nil
}

func (cli *commandLine) render(w *grid.Window) error {
	first, last := w.Bounds()
	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s .. %s (%d days)\n", dates.Key(first), dates.Key(last), w.DayCount())
	for _, cell := range w.Cells() {
		status := "-"
		if cell.OffDay {
			status = "off"
		} else if cell.Record != nil {
			status = string(cell.Record.Status)
			if cell.Record.ApprovalStatus != attendance.ApprovalNone {
				status += " (" + string(cell.Record.ApprovalStatus) + ")"
			}
		}
		var flags string
		if cell.IsToday {
			flags = "today"
		}
		if cell.ShowReasonEntry {
			flags += " reason?"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cell.Key, cell.Date.Format("Mon"), status, flags)
	}
	return tw.Flush()
}
