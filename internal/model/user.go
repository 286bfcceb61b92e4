package model

import "github.com/foliodb/folio/internal/orm"

// User is an account that can sign in to the write API. The password hash
// stays in the users table and is never copied here.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == "admin" }

// UserFromRecord maps a users row onto a User.
func UserFromRecord(rec orm.Record) User {
	u := User{}
	u.ID, _ = rec["id"].(int64)
	u.Email, _ = rec["email"].(string)
	u.Role, _ = rec["role"].(string)
	u.CreatedAt, _ = rec["created_at"].(string)
	u.UpdatedAt, _ = rec["updated_at"].(string)
	return u
}
