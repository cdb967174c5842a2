package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

var (
	statusTag  = "attstatus"
	statusText = "{0} must be one of present, absent, leave or late"

	approvalTag  = "approval"
	approvalText = "{0} must be one of approved or rejected"

	kindTag  = "attkind"
	kindText = "{0} must be one of student or teacher"
)

// RegisterValidators registers the attendance validation tags on validate.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(approvalTag, approvalValidation)
	core.RegisterCustomTranslation(validate, translator, approvalTag, approvalText)

	_ = validate.RegisterValidation(kindTag, kindValidation)
	core.RegisterCustomTranslation(validate, translator, kindTag, kindText)
}

func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}

func approvalValidation(fl validator.FieldLevel) bool {
	switch ApprovalStatus(fl.Field().String()) {
	case ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

func kindValidation(fl validator.FieldLevel) bool {
	switch Kind(fl.Field().String()) {
	case KindStudent, KindTeacher:
		return true
	}
	return false
}
