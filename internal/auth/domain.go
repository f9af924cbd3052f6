package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Boss is a tenant owner account, authenticated by email and password.
type Boss struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Seller is a tenant's field agent, authenticated by a long-lived opaque
// token. The token is only ever shown to the boss who owns the seller.
type Seller struct {
	ID        int64     `json:"id"`
	BossID    int64     `json:"boss_id"`
	Name      string    `json:"name"`
	Token     string    `json:"token,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips the bearer token for seller-facing responses.
func (s Seller) Public() Seller {
	s.Token = ""
	return s
}

// Claims is the JWT payload issued on login.
type Claims struct {
	Role   string `json:"role"`
	BossID int64  `json:"boss_id,omitempty"`
	jwt.RegisteredClaims
}

// RegisterBossRequest creates a tenant owner account.
type RegisterBossRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// LoginBossRequest authenticates a boss.
type LoginBossRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginSellerRequest authenticates a seller device by opaque token.
type LoginSellerRequest struct {
	Token string `json:"token" validate:"required"`
}

// LoginResponse carries the access token plus the authenticated account.
type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	Boss        *Boss   `json:"boss,omitempty"`
	Seller      *Seller `json:"seller,omitempty"`
}
