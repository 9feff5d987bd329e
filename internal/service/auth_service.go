package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chatsurvey/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	defaultAdminPassword = "password123"
	defaultJWTSecret     = "super-secret-key-change-in-production"

	tokenLifetime = 7 * 24 * time.Hour
)

// AuthService authenticates the management API. Credentials are compared in
// constant time so login timing does not leak how much of a guess matched.
type AuthService struct {
	usernameHash [32]byte
	passwordHash [32]byte
	jwtSecret    []byte
}

// NewAuthService builds an auth service for the given admin credentials.
func NewAuthService(username, password, jwtSecret string) *AuthService {
	return &AuthService{
		usernameHash: sha256.Sum256([]byte(username)),
		passwordHash: sha256.Sum256([]byte(password)),
		jwtSecret:    []byte(jwtSecret),
	}
}

// NewAuthServiceFromEnv reads ADMIN_USERNAME, ADMIN_PASSWORD and JWT_SECRET,
// falling back to development defaults. Running on a default credential is
// logged loudly so it cannot slip into production unnoticed.
func NewAuthServiceFromEnv() *AuthService {
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = defaultAdminPassword
		log.Println("[Auth] WARNING: ADMIN_PASSWORD not set, using the development default")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = defaultJWTSecret
		log.Println("[Auth] WARNING: JWT_SECRET not set, tokens are signed with the development default")
	}
	return NewAuthService(username, password, secret)
}

// Login validates credentials and returns a signed admin token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	userHash := sha256.Sum256([]byte(username))
	passHash := sha256.Sum256([]byte(password))

	// Hashing first keeps the comparison constant time regardless of the
	// lengths involved. Combine with & so both fields are always checked.
	userOK := subtle.ConstantTimeCompare(userHash[:], s.usernameHash[:])
	passOK := subtle.ConstantTimeCompare(passHash[:], s.passwordHash[:])
	if userOK&passOK != 1 {
		return nil, ErrInvalidCredentials
	}

	adminID := "admin_" + uuid.New().String()[:8]

	claims := &model.AdminClaims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:   tokenString,
		AdminID: adminID,
	}, nil
}

// ValidateAdminToken validates an admin JWT and returns its claims. Only
// HS256 is accepted; a token signed with any other method is rejected.
func (s *AuthService) ValidateAdminToken(tokenString string) (*model.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.AdminClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
