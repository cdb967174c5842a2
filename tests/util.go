package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	Admin   = user.Session{UserID: "u-admin", Name: "Admin", Roles: []string{user.RoleAdmin}}
	Teacher = user.Session{UserID: "u-teacher", Name: "Teacher", Roles: []string{user.RoleTeacher}, TeacherID: "t-1", ClassIDs: []string{"c-1"}}
	Student = user.Session{UserID: "u-student", Name: "Student", Roles: []string{user.RoleStudent}, StudentID: "s-1"}
)

// CreateRecord stores rec as is, bypassing the service rules.
func CreateRecord(t *testing.T, repo attendance.Repository, rec attendance.Record) attendance.Record {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
	}
	saved, err := repo.UpsertRecords(context.Background(), []attendance.Record{rec})
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return saved[0]
}

// NewValidator returns a validator with every application tag registered.
func NewValidator() *validator.Validate {
	validate, _ := NewTranslatedValidator()
	return validate
}

// NewTranslatedValidator also returns the translator the validation messages were registered on.
func NewTranslatedValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	attendance.RegisterValidators(validate, translator)
	return validate, translator
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// MailOutbox renders and keeps messages synchronously instead of sending them.
type MailOutbox struct {
	mu       sync.Mutex
	Messages []core.EmailMessage
}

var _ core.EmailService = (*MailOutbox)(nil)

func (o *MailOutbox) SendMessages(messages ...*core.EmailMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, msg := range messages {
		if err := msg.Render(); err == nil && msg.HasRecipients() && msg.HasContent() {
			o.Messages = append(o.Messages, *msg)
		}
	}
}

func (o *MailOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Messages)
}
