package credential_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/otpAuth/credential"
)

var now = time.Unix(1_700_000_000, 0).UTC()

func newCredential(suffix string) *credential.Credential {
	return &credential.Credential{
		Email:        "user-" + suffix + "@example.com",
		Phone:        "",
		Name:         "Test User",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Role:         "reporter",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func runStoreContract(t *testing.T, store credential.Store) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		c := newCredential(uuid.NewString())
		c.Phone = "+2547" + uuid.NewString()[:8]
		require.NoError(t, store.Create(ctx, c))
		require.NotEmpty(t, c.ID)

		byEmail, err := store.GetByEmail(ctx, c.Email)
		require.NoError(t, err)
		require.Equal(t, c.ID, byEmail.ID)
		require.False(t, byEmail.Verified)
		require.True(t, byEmail.Active)

		byPhone, err := store.GetByPhone(ctx, c.Phone)
		require.NoError(t, err)
		require.Equal(t, c.ID, byPhone.ID)

		_, err = store.GetByEmail(ctx, "missing-"+uuid.NewString()+"@example.com")
		require.ErrorIs(t, err, credential.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		c := newCredential(uuid.NewString())
		require.NoError(t, store.Create(ctx, c))

		dup := newCredential("")
		dup.Email = c.Email
		require.ErrorIs(t, store.Create(ctx, dup), credential.ErrDuplicate)
	})

	t.Run("lockout after threshold", func(t *testing.T) {
		c := newCredential(uuid.NewString())
		require.NoError(t, store.Create(ctx, c))

		for i := 1; i <= 2; i++ {
			res, err := store.RecordLoginFailure(ctx, c.ID, 3, 15*time.Minute, now)
			require.NoError(t, err)
			require.Equal(t, i, res.Count)
			require.False(t, res.Locked)
		}
		res, err := store.RecordLoginFailure(ctx, c.ID, 3, 15*time.Minute, now)
		require.NoError(t, err)
		require.True(t, res.Locked)
		require.True(t, res.LockoutUntil.Equal(now.Add(15*time.Minute)))

		got, err := store.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.True(t, got.Locked(now))
		require.False(t, got.Locked(now.Add(15*time.Minute)))
		require.Equal(t, 0, got.FailedLoginCount)

		require.NoError(t, store.RecordLoginSuccess(ctx, c.ID, now))
		got, err = store.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.False(t, got.Locked(now))
		require.True(t, got.LastLoginAt.Equal(now))
	})

	t.Run("concurrent failures are all counted", func(t *testing.T) {
		c := newCredential(uuid.NewString())
		require.NoError(t, store.Create(ctx, c))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.RecordLoginFailure(ctx, c.ID, 100, time.Minute, now)
			}()
		}
		wg.Wait()

		got, err := store.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, 8, got.FailedLoginCount)
	})

	t.Run("verify, rehash and deactivate", func(t *testing.T) {
		c := newCredential(uuid.NewString())
		require.NoError(t, store.Create(ctx, c))
		_, err := store.RecordLoginFailure(ctx, c.ID, 5, time.Minute, now)
		require.NoError(t, err)

		require.NoError(t, store.MarkVerified(ctx, c.ID, now))
		require.NoError(t, store.UpdatePasswordHash(ctx, c.ID, "new-hash", true, now))
		require.NoError(t, store.Deactivate(ctx, c.ID, now))

		got, err := store.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.True(t, got.Verified)
		require.False(t, got.Active)
		require.Equal(t, "new-hash", got.PasswordHash)
		require.Equal(t, 0, got.FailedLoginCount)

		require.ErrorIs(t, store.MarkVerified(ctx, "missing", now), credential.ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, credential.NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := credential.NewMemoryStore()
	c := newCredential("copy")
	require.NoError(t, store.Create(context.Background(), c))

	got, err := store.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	got.Role = "admin"

	again, err := store.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, "reporter", again.Role)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("OTPAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OTPAUTH_TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := credential.NewPostgresStore(pool)
	require.NoError(t, store.Migrate(context.Background()))
	runStoreContract(t, store)
}
