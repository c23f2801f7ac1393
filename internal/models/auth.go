package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the actor roles known to the scheduling engine.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
	RoleAdmin   UserRole = "ADMIN"
)

// JWTClaims carries the authenticated identity extracted from the token.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a mutating operation. Services never resolve
// identity from ambient state; handlers build an Actor from the validated
// claims and pass it in explicitly.
type Actor struct {
	ID   string
	Name string
	Role UserRole
}

// Actor converts claims to the explicit actor form used by services.
func (c *JWTClaims) Actor() *Actor {
	if c == nil {
		return nil
	}
	return &Actor{ID: c.UserID, Name: c.FullName, Role: c.Role}
}
