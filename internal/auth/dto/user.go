package dto

import (
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
)

// UserOutput is the only user shape that leaves the service. It never carries
// the password hash or the OTP.
type UserOutput struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Professional string `json:"professional"`
	IsVerified   bool   `json:"isVerified"`
}

func NewUserOutput(u *domain.User) UserOutput {
	return UserOutput{
		ID:           u.ID,
		FullName:     u.FullName,
		Phone:        u.Phone,
		Email:        u.Email,
		Professional: u.Professional,
		IsVerified:   u.IsVerified,
	}
}
