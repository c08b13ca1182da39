// Package validation runs the client-side form checks before a request is
// sent. Failures use the same field list the server returns in data.errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"postly/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	usernameChars = regexp.MustCompile(`^[a-z0-9-]+$`)
	alnumStart    = regexp.MustCompile(`^[a-z0-9]`)
	alnumEnd      = regexp.MustCompile(`[a-z0-9]$`)
)

// messages holds the user-facing text per "field.tag". Anything missing falls
// back to formatFieldError.
var messages = map[string]string{
	"email.required":          "Invalid email address",
	"email.email":             "Invalid email address",
	"password.min":            "Password must be at least 8 characters",
	"username.required":       "Username is required",
	"username.max":            "Username must be 20 characters or fewer",
	"username.usernamechars":  "Username may only contain lowercase letters, numbers, and hyphens",
	"username.alnumstart":     "Username must start with a letter or number",
	"username.alnumend":       "Username cannot end with a hyphen",
	"username.nodoublehyphen": "Username cannot contain consecutive hyphens",
	"category.min":            "Category must be at least 3 characters",
	"category.max":            "Category cannot exceed 30 characters",
	"title.min":               "Blog post title must be at least 5 characters",
	"title.max":               "Blog post title cannot exceed 100 characters",
	"content.min":             "Blog post content must be at least 100 characters",
	"content.max":             "Blog post content cannot exceed 2000 characters",
}

var commentMessages = map[string]string{
	"required": "Comment cannot be empty",
	"notblank": "Comment cannot be empty",
	"min":      "Comment must be at least 2 characters",
	"max":      "Comment cannot exceed 300 characters",
}

// Validator wraps a configured go-playground validator.
type Validator struct {
	validate *validator.Validate
}

// New registers the custom tags and reports field names by their JSON name.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"usernamechars":  matchString(usernameChars.MatchString),
		"alnumstart":     matchString(alnumStart.MatchString),
		"alnumend":       matchString(alnumEnd.MatchString),
		"nodoublehyphen": matchString(func(s string) bool { return !strings.Contains(s, "--") }),
		"notblank":       matchString(func(s string) bool { return strings.TrimSpace(s) != "" }),
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %s: %v", tag, err))
		}
	}
	return &Validator{validate: v}
}

func matchString(fn func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	}
}

// Signup checks username, email and password.
func (v *Validator) Signup(c models.Credentials) error {
	return toAppError(v.validate.Struct(signupForm{
		Username: c.Username,
		Email:    c.Email,
		Password: c.Password,
	}), messages)
}

// Login checks email and password only.
func (v *Validator) Login(c models.Credentials) error {
	return toAppError(v.validate.StructPartial(c, "Email", "Password"), messages)
}

// CreatePost checks title, category and content lengths.
func (v *Validator) CreatePost(in models.CreatePostInput) error {
	return toAppError(v.validate.Struct(in), messages)
}

// CreateComment checks the comment body.
func (v *Validator) CreateComment(in models.CreateCommentInput) error {
	return toAppError(v.validate.Struct(in), commentMessages)
}

type signupForm struct {
	Username string `json:"username" validate:"required,max=20,usernamechars,alnumstart,alnumend,nodoublehyphen"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8"`
}

func toAppError(err error, msgs map[string]string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.NewValidationError(err.Error(), nil)
	}

	fields := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, models.FieldError{
			Field:   fe.Field(),
			Message: messageFor(fe, msgs),
		})
	}
	return models.NewValidationError("", fields)
}

func messageFor(fe validator.FieldError, msgs map[string]string) string {
	if msg, ok := msgs[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := msgs[fe.Tag()]; ok {
		return msg
	}
	return formatFieldError(fe)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
