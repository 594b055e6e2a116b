package dto

import domainuser "helpdesk/internal/domain/user"

type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

func NewAuthResponse(user *domainuser.User, token string) AuthResponse {
	return AuthResponse{Token: token, User: NewUserProfile(user)}
}

func NewUserProfile(user *domainuser.User) UserProfile {
	return UserProfile{
		ID:    string(user.ID),
		Name:  user.Name,
		Email: user.Email,
	}
}
