package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/clock"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrate needs storage.driver=postgres")

	// cliSession is who the admin CLI acts as.
	cliSession = user.Session{UserID: "admin-cli", Name: "Admin CLI", Roles: []string{user.RoleAdmin}}
)

type commandLine struct {
	db    *sql.DB // nil with the in-memory store
	svc   *attendance.Service
	clock clock.Clock
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version...)")
	_, _ = fmt.Fprintln(cli.out, "  resolve -option OPTION [-start DATE -end DATE] - print the window of a range option")
	_, _ = fmt.Fprintln(cli.out, "  grid -subject ID [-kind student|teacher] [-option OPTION] [-start DATE -days N] [-watch] - print attendance cells")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "resolve":
		return cli.resolve(args[2:])
	case "grid":
		return cli.grid(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
