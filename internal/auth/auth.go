package auth

import (
	"errors"
	"fmt"
	"time"

	"turnero/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity carried by an access token.
type Claims struct {
	UserID    string
	Role      string
	BoxNumber *int
}

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs an HS256 access token for the user. Box agents carry their
// station number so per-request identity needs no extra lookup.
func (m *Manager) Issue(user models.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":  user.UserID,
		"role": user.Role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if user.BoxNumber != nil {
		claims["box_number"] = *user.BoxNumber
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies the signature and expiry and extracts the identity claims.
func (m *Manager) Parse(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	if sub == "" || role == "" {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{UserID: sub, Role: role}
	if box, ok := mapClaims["box_number"].(float64); ok {
		n := int(box)
		claims.BoxNumber = &n
	}
	return claims, nil
}
