package dto

import (
	"net/mail"
	"strings"

	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
)

type RegisterInput struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Professional string `json:"professional"`
}

// Normalize trims identity fields and lower-cases the email. The password is
// left untouched.
func (in *RegisterInput) Normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = NormalizeEmail(in.Email)
	in.Professional = strings.TrimSpace(in.Professional)
}

func (in RegisterInput) Validate() error {
	switch {
	case in.FullName == "":
		return autherror.Validation("fullName is required")
	case in.Phone == "":
		return autherror.Validation("phone is required")
	case in.Email == "":
		return autherror.Validation("email is required")
	case in.Password == "":
		return autherror.Validation("password is required")
	case in.Professional == "":
		return autherror.Validation("professional is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return autherror.Validation("email is not a valid address")
	}
	return nil
}

type RegisterOutput struct {
	Message             string     `json:"message"`
	User                UserOutput `json:"user"`
	VerificationPending bool       `json:"verification_pending"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
