package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RoleStudent = "student"
	RoleCoach   = "coach"
	RoleAdmin   = "admin"

	CoachPending  = "pending"
	CoachApproved = "approved"
	CoachRejected = "rejected"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Email       string    `bun:"email,unique,notnull" json:"email"`
	FullName    string    `bun:"full_name,notnull" json:"full_name"`
	Role        string    `bun:"role,notnull" json:"role"`
	CoachStatus string    `bun:"coach_status" json:"coach_status,omitempty"`
	PaypalEmail string    `bun:"paypal_email" json:"paypal_email,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
