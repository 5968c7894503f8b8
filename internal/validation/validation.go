// Package validation checks user input before any request is made. Each
// check collects the first failing rule per field into an apperr
// ValidationFailed error.
package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"cchat/internal/apperr"
	"cchat/internal/models"
)

const (
	minNameLen     = 6
	maxNameLen     = 50
	minPasswordLen = 6
	minGroupOthers = 2
)

// fields accumulates the first message per field.
type fields map[string]string

func (f fields) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fields) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

func (f fields) email(email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		f.add("email", "Email is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		f.add("email", "Invalid email address")
	}
}

func (f fields) password(field, password, label string) {
	if password == "" {
		f.add(field, label+" is required")
		return
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		f.add(field, label+" must be at least 6 characters")
	}
}

// Login validates the login form.
func Login(email, password string) error {
	f := fields{}
	f.email(email)
	f.password("password", password, "Password")
	return f.err()
}

// Register validates the registration form.
func Register(name, email, password, confirm string) error {
	f := fields{}
	name = strings.TrimSpace(name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		f.add("name", "Name is required")
	case n < minNameLen:
		f.add("name", "Name must be at least 6 characters")
	case n > maxNameLen:
		f.add("name", "Name must be at most 50 characters")
	}
	f.email(email)
	f.password("password", password, "Password")
	if confirm == "" {
		f.add("confirmPassword", "Confirm password is required")
	} else if confirm != password {
		f.add("confirmPassword", "Passwords do not match")
	}
	return f.err()
}

// Email validates a single email field (forgot password).
func Email(email string) error {
	f := fields{}
	f.email(email)
	return f.err()
}

// OTP validates the one-time code form.
func OTP(email, otp string) error {
	f := fields{}
	f.email(email)
	if strings.TrimSpace(otp) == "" {
		f.add("otp", "OTP is required")
	}
	return f.err()
}

// ResetPassword validates the new password form.
func ResetPassword(password, confirm string) error {
	f := fields{}
	f.password("password", password, "Password")
	if confirm == "" {
		f.add("confirmPassword", "Confirm password is required")
	} else if confirm != password {
		f.add("confirmPassword", "Passwords do not match")
	}
	return f.err()
}

// Group validates a new group: a name and at least two other participants.
func Group(name string, participantIDs []string) error {
	f := fields{}
	if strings.TrimSpace(name) == "" {
		f.add("name", "Group name cannot be empty")
	}
	if len(participantIDs) < minGroupOthers {
		f.add("participants", "Group must have at least 2 participants")
	}
	return f.err()
}

// Draft rejects a composition with neither text nor attachment.
func Draft(d models.Draft) error {
	if !d.Committable() {
		return apperr.Invalid("content", "Message cannot be empty")
	}
	return nil
}

// Profile validates a profile update.
func Profile(name string) error {
	f := fields{}
	if strings.TrimSpace(name) == "" {
		f.add("name", "Name is required")
	}
	return f.err()
}
