package users

import "time"

type UserRepo interface {
	// Create stores a new user and fails with ErrAlreadyExists when the
	// username or email is taken.
	Create(user *User) error
	Upsert(user *User) error
	Delete(username string) error
	GetByUsername(username string) (*User, error)
	GetByID(ID string) (*User, error)
	List(offset, limit int) ([]*User, error)
	SetBlocked(username string, blocked bool) error
	SetLastLogin(username string, at time.Time) error
}
