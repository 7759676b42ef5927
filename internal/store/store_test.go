package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	cerrors "certagent/internal/errors"
	"certagent/internal/store"
)

const strongPass = "Correct-Horse-9-Battery"

func backends(t *testing.T) map[string]domain.KeyStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	r := store.NewRedis("redis://"+mr.Addr(), "certagent:")
	t.Cleanup(func() { _ = r.Close() })

	enc, err := store.NewEncrypted(store.NewMemory(), strongPass, crypto.KDFScrypt)
	require.NoError(t, err)

	return map[string]domain.KeyStorage{
		"memory":    store.NewMemory(),
		"file":      store.NewFileStore(filepath.Join(t.TempDir(), "keys")),
		"redis":     r,
		"encrypted": enc,
	}
}

func TestKeyStorageContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, domain.StorageKeySessionKey)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, domain.StorageKeySessionKey, []byte("v1")))
			require.NoError(t, s.Set(ctx, domain.StorageKeySessionKey, []byte("v2")))
			v, ok, err := s.Get(ctx, domain.StorageKeySessionKey)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v2"), v)

			require.NoError(t, s.Remove(ctx, domain.StorageKeySessionKey))
			require.NoError(t, s.Remove(ctx, domain.StorageKeySessionKey))
			_, ok, err = s.Get(ctx, domain.StorageKeySessionKey)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	s := store.NewFileStore(t.TempDir())
	err := s.Set(context.Background(), domain.StorageKey("../escape"), []byte("x"))
	assert.ErrorIs(t, err, cerrors.ErrStorageWrite)
	_, _, err = s.Get(context.Background(), domain.StorageKey(".hidden"))
	assert.ErrorIs(t, err, cerrors.ErrStorageRead)
}

func TestFileStoreWritesPrivateFiles(t *testing.T) {
	dir := t.TempDir()
	s := store.NewFileStore(dir)
	require.NoError(t, s.Set(context.Background(), domain.StorageKeyDelegationChain, []byte("{}")))
	info, err := os.Stat(filepath.Join(dir, "delegation-chain.rec"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedSealsAtRest(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemory()
	enc, err := store.NewEncrypted(inner, strongPass, crypto.KDFScrypt)
	require.NoError(t, err)

	require.NoError(t, enc.Set(ctx, domain.StorageKeySessionKey, []byte("very secret")))
	raw, ok, err := inner.Get(ctx, domain.StorageKeySessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "very secret")

	_, ok, err = inner.Get(ctx, domain.StorageKeyIntegrityVector)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := store.NewEncrypted(inner, "Wrong-Horse-9-Battery", crypto.KDFScrypt)
	require.NoError(t, err)
	_, _, err = other.Get(ctx, domain.StorageKeySessionKey)
	assert.ErrorIs(t, err, cerrors.ErrStorageRead)

	again, err := store.NewEncrypted(inner, strongPass, crypto.KDFArgon2id)
	require.NoError(t, err)
	v, ok, err := again.Get(ctx, domain.StorageKeySessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "very secret", string(v))
}

func TestEncryptedRejectsWeakPassphrase(t *testing.T) {
	_, err := store.NewEncrypted(store.NewMemory(), "short", crypto.KDFScrypt)
	assert.ErrorIs(t, err, store.ErrWeakPassphrase)
}

func TestEncryptedRecordWithoutVectorFails(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemory()
	require.NoError(t, inner.Set(ctx, domain.StorageKeySessionKey, []byte("plain")))
	enc, err := store.NewEncrypted(inner, strongPass, crypto.KDFScrypt)
	require.NoError(t, err)
	_, _, err = enc.Get(ctx, domain.StorageKeySessionKey)
	assert.ErrorIs(t, err, cerrors.ErrStorageRead)
}

func TestOpen(t *testing.T) {
	s, err := store.Open(store.Options{Backend: store.BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, s)

	s, err = store.Open(store.Options{Backend: store.BackendMemory, Passphrase: strongPass, KDF: crypto.KDFScrypt})
	require.NoError(t, err)
	assert.IsType(t, &store.Encrypted{}, s)

	_, err = store.Open(store.Options{Backend: "floppy"})
	assert.Error(t, err)
	_, err = store.Open(store.Options{Backend: store.BackendFile})
	assert.Error(t, err)
}

// failingStore fails every Set.
type failingStore struct {
	*store.Memory
}

func (f failingStore) Set(_ context.Context, key domain.StorageKey, _ []byte) error {
	return &store.OpError{Op: "set", Key: key, Backend: "failing", Err: errors.New("disk full")}
}

func TestMigrateMovesLegacyValue(t *testing.T) {
	ctx := context.Background()
	legacy, current := store.NewMemory(), store.NewMemory()
	require.NoError(t, legacy.Set(ctx, domain.StorageKeySessionKey, []byte("key")))
	require.NoError(t, legacy.Set(ctx, domain.StorageKeyDelegationChain, []byte("old chain")))
	require.NoError(t, current.Set(ctx, domain.StorageKeyDelegationChain, []byte("new chain")))

	require.NoError(t, store.Migrate(ctx, legacy, current, domain.SessionStorageKeys(), zerolog.Nop()))

	v, ok, _ := current.Get(ctx, domain.StorageKeySessionKey)
	assert.True(t, ok)
	assert.Equal(t, []byte("key"), v)
	_, ok, _ = legacy.Get(ctx, domain.StorageKeySessionKey)
	assert.False(t, ok)

	v, _, _ = current.Get(ctx, domain.StorageKeyDelegationChain)
	assert.Equal(t, []byte("new chain"), v)
	_, ok, _ = legacy.Get(ctx, domain.StorageKeyDelegationChain)
	assert.True(t, ok, "records already present in the new backend are not touched")
}

func TestMigrateKeepsLegacyValueWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	legacy := store.NewMemory()
	current := failingStore{store.NewMemory()}
	require.NoError(t, legacy.Set(ctx, domain.StorageKeySessionKey, []byte("key")))

	err := store.Migrate(ctx, legacy, current, domain.SessionStorageKeys(), zerolog.Nop())
	assert.ErrorIs(t, err, cerrors.ErrMigration)

	v, ok, err := legacy.Get(ctx, domain.StorageKeySessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("key"), v)
}

func TestOpErrorMatchesSentinels(t *testing.T) {
	cause := errors.New("boom")
	rerr := &store.OpError{Op: "get", Key: domain.StorageKeySessionKey, Backend: "x", Err: cause}
	assert.ErrorIs(t, rerr, cerrors.ErrStorageRead)
	assert.ErrorIs(t, rerr, cause)
	werr := &store.OpError{Op: "remove", Key: domain.StorageKeySessionKey, Backend: "x", Err: cause}
	assert.ErrorIs(t, werr, cerrors.ErrStorageWrite)
	assert.NotErrorIs(t, werr, cerrors.ErrStorageRead)
}
