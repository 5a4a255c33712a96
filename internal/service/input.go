package service

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/iliyamo/account-authority/internal/apperr"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,29}$`)
	namePattern     = regexp.MustCompile(`^[\p{L} ]*$`)
)

// MaxAge bounds the optional age field.
const MaxAge = 150

// SignupInput is the registration payload.
type SignupInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	Age       int    `json:"age"`
}

func (in SignupInput) normalized() SignupInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	return in
}

// validate checks the shape of every field except the password, whose
// policy is applied after the uniqueness check.
func (in SignupInput) validate() error {
	if in.Username == "" {
		return apperr.New(apperr.Validation, "username is required").WithField("username")
	}
	if !usernamePattern.MatchString(in.Username) {
		return apperr.New(apperr.Validation,
			"username must be 3-30 characters, start with a letter and contain only letters, digits and underscores").WithField("username")
	}
	if in.Email == "" {
		return apperr.New(apperr.Validation, "email is required").WithField("email")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return apperr.New(apperr.Validation, "email is not a valid address").WithField("email")
	}
	if !namePattern.MatchString(in.FirstName) {
		return apperr.New(apperr.Validation, "first name may contain only letters and spaces").WithField("firstName")
	}
	if !namePattern.MatchString(in.LastName) {
		return apperr.New(apperr.Validation, "last name may contain only letters and spaces").WithField("lastName")
	}
	if in.Age < 0 || in.Age > MaxAge {
		return apperr.Newf(apperr.Validation, "age must be between 0 and %d", MaxAge).WithField("age")
	}
	if in.Password == "" {
		return apperr.New(apperr.Validation, "password is required").WithField("password")
	}
	return nil
}
