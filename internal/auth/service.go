package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rotasales/rotasales/internal/shared"
)

// RepositoryPort defines data access methods for authentication.
type RepositoryPort interface {
	CreateBoss(ctx context.Context, boss Boss) (*Boss, error)
	GetBossByEmail(ctx context.Context, email string) (*Boss, error)
	GetBoss(ctx context.Context, id int64) (*Boss, error)
	GetActiveSellerByToken(ctx context.Context, token string) (*Seller, error)
}

// Service handles account registration and login.
type Service struct {
	repo   RepositoryPort
	issuer *TokenIssuer
	cache  *TokenCache
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, issuer *TokenIssuer, cache *TokenCache) *Service {
	return &Service{repo: repo, issuer: issuer, cache: cache}
}

// RegisterBoss creates a tenant owner with a hashed password.
func (s *Service) RegisterBoss(ctx context.Context, req RegisterBossRequest) (*Boss, error) {
	existing, err := s.repo.GetBossByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing boss: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: boss with this email", shared.ErrAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateBoss(ctx, Boss{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
}

// LoginBoss verifies credentials and issues an access token.
func (s *Service) LoginBoss(ctx context.Context, req LoginBossRequest) (*LoginResponse, error) {
	boss, err := s.repo.GetBossByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login boss: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(boss.PasswordHash), []byte(req.Password)) != nil {
		return nil, shared.ErrInvalidCredentials
	}

	access, err := s.issuer.Issue(shared.Identity{ID: boss.ID, Role: shared.RoleBoss})
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: access, Boss: boss}, nil
}

// LoginSeller resolves a device token, through the cache when possible, and
// issues an access token carrying the owning tenant.
func (s *Service) LoginSeller(ctx context.Context, req LoginSellerRequest) (*LoginResponse, error) {
	seller, err := s.cache.Get(ctx, req.Token)
	if err != nil {
		// Cache trouble must not lock sellers out.
		seller = nil
	}
	if seller == nil {
		seller, err = s.repo.GetActiveSellerByToken(ctx, req.Token)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("%w: invalid or inactive token", shared.ErrInvalidCredentials)
			}
			return nil, fmt.Errorf("login seller: %w", err)
		}
		_ = s.cache.Set(ctx, seller)
	}

	access, err := s.issuer.Issue(shared.Identity{
		ID:     seller.ID,
		Role:   shared.RoleSeller,
		BossID: seller.BossID,
	})
	if err != nil {
		return nil, err
	}
	public := seller.Public()
	return &LoginResponse{AccessToken: access, Seller: &public}, nil
}
