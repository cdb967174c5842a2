package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
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

const dbSetupTimeout = 30 * time.Second

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the storage opened by the container.
	DBCloser func() error

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Service    *attendance.Service
		Clock      clock.Clock
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

// newRepository opens the storage selected by storage.driver, creating and migrating the postgres database.
func newRepository(conf *core.Config, loggerParam DBLoggerParam) (attendance.Repository, DBCloser) {
	if conf.StorageDriver == "inmem" {
		loggerParam.Logger.Info("using the in-memory attendance store")
		return inmemdb.NewAttendanceRepository(inmemdb.Open()), func() error { return nil }
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return sqlxrepos.NewAttendanceRepository(db), db.Close
}

func newCalendar(conf *core.Config) (*calendar.Calendar, error) {
	return calendar.New(conf.Attendance.Location(), conf.Attendance.Holidays...)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	return emailsvc.New(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), logger, conf)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	attendance.RegisterValidators(validate, translator)
	return validate
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		AttendanceSvc: p.Service,
		Clock:         p.Clock,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(clock.New))
	must(c.Provide(newCalendar))
	must(c.Provide(newRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(attendance.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
