package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// CreateTicketInput is the student submission form.
type CreateTicketInput struct {
	IssueType           string            `json:"issueType" validate:"issuetype"`
	Department          string            `json:"department" validate:"min=2"`
	Title               string            `json:"title" validate:"min=4"`
	Description         string            `json:"description" validate:"min=10"`
	StudentName         string            `json:"studentName" validate:"min=2"`
	StudentID           string            `json:"studentId" validate:"min=2"`
	StudentEmailOrPhone string            `json:"studentEmailOrPhone" validate:"studentemail"`
	Attachments         []AttachmentInput `json:"attachments" validate:"omitempty,max=10,dive"`
}

// AttachmentInput references a previously uploaded file.
type AttachmentInput struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileURL  string `json:"fileUrl" validate:"uploadref"`
	FileMime string `json:"fileMime" validate:"required"`
	FileSize int64  `json:"fileSize" validate:"gte=0"`
}

// AppendAttachmentsInput adds files to an existing ticket.
type AppendAttachmentsInput struct {
	Attachments []AttachmentInput `json:"attachments" validate:"required,min=1,max=10,dive"`
}

// NoteInput is a student follow-up message.
type NoteInput struct {
	Message string `json:"message" validate:"min=3,max=5000"`
}

// ReplyInput is an admin reply. JSON clients ask for escalation with
// escalateToWaiting; the dashboard form posts setWaiting.
type ReplyInput struct {
	Message           string `json:"message" form:"message" validate:"min=2,max=5000"`
	EscalateToWaiting bool   `json:"escalateToWaiting" form:"escalateToWaiting"`
	SetWaiting        bool   `json:"setWaiting" form:"setWaiting"`
}

// Escalates reports whether the reply also moves the ticket to
// WAITING_STUDENT in the same transaction.
func (in ReplyInput) Escalates() bool {
	return in.EscalateToWaiting || in.SetWaiting
}

// StatusInput is an admin status change.
type StatusInput struct {
	Status string `json:"status" form:"status" validate:"ticketstatus"`
}

// AssignInput names the staff account to assign; empty clears the assignment.
type AssignInput struct {
	StaffID string `json:"staffId" form:"staffId" validate:"max=64"`
}

// LoginInput carries staff credentials.
type LoginInput struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// Validator checks inputs and turns failures into VALIDATION errors whose
// message names the first violated rule.
type Validator struct {
	validate    *validator.Validate
	emailDomain string
	messages    map[string]string
}

// NewValidator registers the helpdesk rules. Student emails must end with
// "@"+emailDomain; attachment URLs must start with one of uploadPrefixes.
func NewValidator(emailDomain string, uploadPrefixes []string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	suffix := "@" + strings.ToLower(emailDomain)
	mustRegister(v, "studentemail", func(fl validator.FieldLevel) bool {
		value := strings.ToLower(fl.Field().String())
		return strings.HasSuffix(value, suffix) && v.Var(value, "email") == nil
	})
	mustRegister(v, "uploadref", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if strings.Contains(value, "..") {
			return false
		}
		for _, prefix := range uploadPrefixes {
			if strings.HasPrefix(value, prefix) && len(value) > len(prefix) {
				return true
			}
		}
		return false
	})
	mustRegister(v, "issuetype", func(fl validator.FieldLevel) bool {
		return domain.IssueType(fl.Field().String()).Valid()
	})
	mustRegister(v, "ticketstatus", func(fl validator.FieldLevel) bool {
		return domain.TicketStatus(fl.Field().String()).Valid()
	})

	return &Validator{
		validate:    v,
		emailDomain: emailDomain,
		messages: map[string]string{
			"issueType":           "Valid issue type is required",
			"department":          "Department is required",
			"title":               "Title is required",
			"description":         "Description is required",
			"studentName":         "Full name is required",
			"studentId":           "Student ID is required",
			"studentEmailOrPhone": fmt.Sprintf("Valid %s email is required", emailDomain),
			"fileUrl":             "Invalid file reference",
			"status":              "Valid status is required",
			"email":               "Valid email is required",
			"password":            "Password is required",
		},
	}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// EmailDomain returns the required student email domain.
func (v *Validator) EmailDomain() string {
	return v.emailDomain
}

// Check validates input. details maps each failing field to its message.
func (v *Validator) Check(input any) error {
	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInternalError(err)
	}

	details := make(map[string]any, len(verrs))
	var first string
	for _, fe := range verrs {
		msg := v.message(fe)
		if first == "" {
			first = msg
		}
		details[fieldPath(fe)] = msg
	}
	return apperrors.NewValidationError(first, details)
}

func (v *Validator) message(fe validator.FieldError) string {
	if msg, ok := v.messages[fe.Field()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// fieldPath drops the struct name from the namespace: "attachments[0].fileUrl".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func trimCreateInput(input *CreateTicketInput) {
	input.IssueType = strings.TrimSpace(input.IssueType)
	input.Department = strings.TrimSpace(input.Department)
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.StudentName = strings.TrimSpace(input.StudentName)
	input.StudentID = strings.TrimSpace(input.StudentID)
	input.StudentEmailOrPhone = strings.TrimSpace(input.StudentEmailOrPhone)
}
