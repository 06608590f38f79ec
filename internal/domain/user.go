package domain

import "time"

// DefaultNameLength is how many leading characters of the email become the
// name of a user created on first login.
const DefaultNameLength = 8

type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Name      string    `json:"name" dynamodbav:"name"`
	Email     string    `json:"email" dynamodbav:"email"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

// DefaultName returns the first DefaultNameLength characters of email.
func DefaultName(email string) string {
	r := []rune(email)
	if len(r) > DefaultNameLength {
		r = r[:DefaultNameLength]
	}
	return string(r)
}

type UpdateNameRequest struct {
	Name string `json:"name" validate:"required"`
}
