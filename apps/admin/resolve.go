package main

import (
	"fmt"

	"github.com/trezcool/mahudhurio/core/daterange"
)

func (cli *commandLine) resolve(args []string) error {
	cmd := cli.newFlagSet("resolve")
	option := cmd.String("option", string(daterange.Default), "last7, last15, lastMonth, currentMonth, last3Months, last6Months, lastYear or custom")
	start := cmd.String("start", "", "first day of a custom range (YYYY-MM-DD)")
	end := cmd.String("end", "", "last day of a custom range (YYYY-MM-DD)")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}

	w := daterange.Resolve(daterange.ParseOption(*option), &daterange.Bounds{Start: *start, End: *end}, cli.svc.Today())
	_, err := fmt.Fprintf(cli.out, "%s: %s\n%s .. %s (%d days)\n", w.Option, w.Label, w.StartKey(), w.EndKey(), w.DayCount)
	return err
}
