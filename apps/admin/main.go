package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/calendar"
	"github.com/trezcool/mahudhurio/core/clock"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	"github.com/trezcool/mahudhurio/storage/database"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
	sqlxrepos "github.com/trezcool/mahudhurio/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(std, conf)

	// set up storage
	var db *sql.DB
	var repo attendance.Repository
	if conf.StorageDriver == "inmem" {
		repo = inmemdb.NewAttendanceRepository(inmemdb.Open())
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		xdb, err := database.Open(ctx, conf)
		cancel()
		errAndDie(logger, err)
		defer xdb.Close()
		db = xdb.DB
		repo = sqlxrepos.NewAttendanceRepository(xdb)
	}

	// set up services
	cal, err := calendar.New(conf.Attendance.Location(), conf.Attendance.Holidays...)
	errAndDie(logger, err)
	clk := clock.New()
	svc, err := attendance.NewService(repo, cal, clk, emailsvc.New(std, logger, conf), logger, conf)
	errAndDie(logger, err)

	// start CLI
	cli := commandLine{
		db:    db,
		svc:   svc,
		clock: clk,
		out:   os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
