package authapi

import (
	"gate/cmd/identity"
)

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=256"`
	Name     *string `json:"name" validate:"omitempty,max=100"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

type passwordUpdateRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=256"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=256"`
}

type profileUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,email,max=254"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type passwordResetRequest struct {
	Token           string `json:"token" validate:"required,max=512"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=256"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type grantRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type userResponse struct {
	ID            string              `json:"id"`
	Email         string              `json:"email"`
	Name          *string             `json:"name"`
	EmailVerified bool                `json:"emailVerified"`
	Roles         []identity.RoleName `json:"roles"`
}

type profileResponse struct {
	User    userResponse `json:"user"`
	Message string       `json:"message"`
}

type emailVerifiedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

type revokeResponse struct {
	Revoked int64 `json:"revoked"`
}

func toUserResponse(p identity.Principal) userResponse {
	roles := p.Roles.Sorted()
	if roles == nil {
		roles = []identity.RoleName{}
	}
	return userResponse{
		ID:            p.UserID,
		Email:         p.Email,
		Name:          p.Name,
		EmailVerified: p.EmailVerified,
		Roles:         roles,
	}
}
