package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rotasales/rotasales/internal/shared"
)

type memoryAuthRepo struct {
	bosses  map[int64]*Boss
	sellers map[string]*Seller
	nextID  int64

	tokenLookups int
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{
		bosses:  map[int64]*Boss{},
		sellers: map[string]*Seller{},
		nextID:  1,
	}
}

func (r *memoryAuthRepo) CreateBoss(_ context.Context, boss Boss) (*Boss, error) {
	boss.ID = r.nextID
	r.nextID++
	boss.CreatedAt = time.Now()
	boss.UpdatedAt = boss.CreatedAt
	r.bosses[boss.ID] = &boss
	return &boss, nil
}

func (r *memoryAuthRepo) GetBossByEmail(_ context.Context, email string) (*Boss, error) {
	for _, b := range r.bosses {
		if b.Email == email {
			return b, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAuthRepo) GetBoss(_ context.Context, id int64) (*Boss, error) {
	b, ok := r.bosses[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return b, nil
}

func (r *memoryAuthRepo) GetActiveSellerByToken(_ context.Context, token string) (*Seller, error) {
	r.tokenLookups++
	s, ok := r.sellers[token]
	if !ok || !s.IsActive {
		return nil, shared.ErrNotFound
	}
	return s, nil
}

func newTestService(t *testing.T, repo *memoryAuthRepo) (*Service, *TokenIssuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	issuer := NewTokenIssuer("test-secret", time.Hour)
	cache := NewTokenCache(client, time.Minute)
	return NewService(repo, issuer, cache), issuer
}

func TestRegisterBossHashesPassword(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, _ := newTestService(t, repo)

	boss, err := svc.RegisterBoss(context.Background(), RegisterBossRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", boss.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(boss.PasswordHash), []byte("secret123")))
}

func TestRegisterBossRejectsDuplicateEmail(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.RegisterBoss(context.Background(), RegisterBossRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	_, err = svc.RegisterBoss(context.Background(), RegisterBossRequest{
		Name: "Other", Email: "ana@example.com", Password: "different1",
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestLoginBossIssuesVerifiableToken(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, issuer := newTestService(t, repo)

	_, err := svc.RegisterBoss(context.Background(), RegisterBossRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	resp, err := svc.LoginBoss(context.Background(), LoginBossRequest{
		Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Boss)

	ident, err := issuer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.Boss.ID, ident.ID)
	assert.Equal(t, shared.RoleBoss, ident.Role)
}

func TestLoginBossWrongPassword(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.RegisterBoss(context.Background(), RegisterBossRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	_, err = svc.LoginBoss(context.Background(), LoginBossRequest{
		Email: "ana@example.com", Password: "wrong",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.LoginBoss(context.Background(), LoginBossRequest{
		Email: "nobody@example.com", Password: "secret123",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginSellerCarriesTenantAndCaches(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, issuer := newTestService(t, repo)

	repo.sellers["device-token"] = &Seller{
		ID: 7, BossID: 3, Name: "Rui", Token: "device-token", IsActive: true,
	}

	resp, err := svc.LoginSeller(context.Background(), LoginSellerRequest{Token: "device-token"})
	require.NoError(t, err)
	require.NotNil(t, resp.Seller)
	assert.Empty(t, resp.Seller.Token)

	ident, err := issuer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ident.ID)
	assert.Equal(t, shared.RoleSeller, ident.Role)
	assert.Equal(t, int64(3), ident.BossID)

	// Second login resolves via the cache.
	_, err = svc.LoginSeller(context.Background(), LoginSellerRequest{Token: "device-token"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.tokenLookups)
}

func TestLoginSellerInactiveToken(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc, _ := newTestService(t, repo)

	repo.sellers["stale-token"] = &Seller{
		ID: 8, BossID: 3, Name: "Luisa", Token: "stale-token", IsActive: false,
	}

	_, err := svc.LoginSeller(context.Background(), LoginSellerRequest{Token: "stale-token"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.LoginSeller(context.Background(), LoginSellerRequest{Token: "never-issued"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
