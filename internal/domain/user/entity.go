package user

import (
	"strings"
	"time"
)

// User はユーザーエンティティを表す
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser は新しいユーザーを作成する
func NewUser(firstName, lastName, email string) *User {
	now := time.Now().UTC()
	return &User{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Rename は氏名を変更する。空の値は変更しない
func (u *User) Rename(firstName, lastName string) error {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" && lastName == "" {
		return ErrNothingToRename
	}
	if firstName != "" {
		u.FirstName = firstName
	}
	if lastName != "" {
		u.LastName = lastName
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// FullName は表示用の氏名を返す
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Validate はユーザーの検証を行う
func (u *User) Validate() error {
	if u.FirstName == "" {
		return ErrFirstNameRequired
	}
	if u.LastName == "" {
		return ErrLastNameRequired
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
