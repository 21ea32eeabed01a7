package models

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleUser
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusInactive
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Session is the server-side state behind the session cookie. Anonymous
// sessions have an empty UserID.
type Session struct {
	ID           string    `json:"-"`
	UserID       string    `json:"userId,omitempty"`
	Username     string    `json:"username,omitempty"`
	Role         UserRole  `json:"role,omitempty"`
	LoginTime    time.Time `json:"loginTime,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
	Initiated    bool      `json:"initiated"`
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// ClearIdentity drops the login fields and keeps the fingerprint.
func (s *Session) ClearIdentity() {
	s.UserID = ""
	s.Username = ""
	s.Role = ""
	s.LoginTime = time.Time{}
}
