// Package session carries the authenticated caller identity into core
// operations. A Session is built from verified JWT claims per request; the
// core never reads auth state from anywhere else.
package session

import (
	"errors"

	"github.com/gin-gonic/gin"
)

const (
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)

var ErrNoSession = errors.New("no authenticated session")

type Session struct {
	UserID uint
	Role   string
}

func (s *Session) IsAdmin() bool  { return s != nil && s.Role == RoleAdmin }
func (s *Session) IsDriver() bool { return s != nil && s.Role == RoleDriver }

// FromGin builds a Session from the claims left by middleware.RequireAuth.
func FromGin(c *gin.Context) (*Session, error) {
	idIfc, ok := c.Get("user_id")
	if !ok {
		return nil, ErrNoSession
	}
	id, ok := idIfc.(float64) // jwt.MapClaims stores numbers as float64
	if !ok {
		return nil, ErrNoSession
	}
	role, _ := c.Get("role")
	roleStr, _ := role.(string)
	return &Session{UserID: uint(id), Role: roleStr}, nil
}
