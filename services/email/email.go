// Package emailsvc holds the core.EmailService implementations.
package emailsvc

import (
	"log"

	"github.com/trezcool/mahudhurio/core"
)

// New returns the console service in debug mode or without a SendGrid key, SendGrid otherwise.
func New(std *log.Logger, logger core.Logger, conf *core.Config) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return NewConsoleService(std, logger, conf)
	}
	return NewSendgridService(logger, conf)
}
