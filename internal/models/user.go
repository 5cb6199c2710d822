package models

// User is the profile record returned by the auth endpoints and cached
// alongside the session tokens.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	StudentID  string `json:"student_id"`
	Department string `json:"department"`
	AvatarURL  string `json:"avatar_url"`
}

// DisplayName returns the user's full name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
