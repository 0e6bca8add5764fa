package auth

import (
	"context"
	"fmt"
	"strconv"

	"ms-coaching/internal/apperr"
)

// Principal is the authenticated caller. The concrete type is one of Student, Coach or Admin.
type Principal interface {
	UserID() int64
	Email() string
	Role() string
	principal()
}

type Student struct {
	ID      int64
	Address string
}

type Coach struct {
	ID       int64
	Address  string
	Approved bool
}

type Admin struct {
	ID      int64
	Address string
}

func (s Student) UserID() int64 { return s.ID }
func (s Student) Email() string { return s.Address }
func (Student) Role() string    { return "student" }
func (Student) principal()      {}

func (c Coach) UserID() int64 { return c.ID }
func (c Coach) Email() string { return c.Address }
func (Coach) Role() string    { return "coach" }
func (Coach) principal()      {}

func (a Admin) UserID() int64 { return a.ID }
func (a Admin) Email() string { return a.Address }
func (Admin) Role() string    { return "admin" }
func (Admin) principal()      {}

// Claims is the token payload this service understands.
type Claims struct {
	Subject     string `json:"sub"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CoachStatus string `json:"coach_status"`
}

// PrincipalFromClaims rejects unknown roles instead of guessing.
func PrincipalFromClaims(c Claims) (Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	switch c.Role {
	case "student":
		return Student{ID: id, Address: c.Email}, nil
	case "coach":
		return Coach{ID: id, Address: c.Email, Approved: c.CoachStatus == "approved"}, nil
	case "admin":
		return Admin{ID: id, Address: c.Email}, nil
	}
	return nil, fmt.Errorf("unknown role %q", c.Role)
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserID returns the caller's id or 0.
func UserID(ctx context.Context) int64 {
	if p, ok := FromContext(ctx); ok {
		return p.UserID()
	}
	return 0
}

// As returns the caller as the concrete principal type T, or ErrForbidden.
func As[T Principal](ctx context.Context) (T, error) {
	p, _ := FromContext(ctx)
	t, ok := p.(T)
	if !ok {
		var zero T
		return zero, apperr.ErrForbidden
	}
	return t, nil
}
