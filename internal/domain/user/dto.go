package user

// UserResponse represents user data in API responses
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func NewUserResponse(u User) UserResponse {
	resp := UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName}
	if u.Role != nil {
		resp.Role = u.Role.String()
	}
	return resp
}
