package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/sign"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLocalKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	me := model.Participant{Role: model.RoleAGR, Domain: "agr.example.com"}

	blob, err := s.StoreLocal(me, []byte("agr seed"))
	require.NoError(t, err)
	require.Contains(t, blob, sign.PublicBlobPrefix)

	priv, err := s.PrivateKey(me)
	require.NoError(t, err)

	// The stored pair must sign and verify against itself.
	sig, err := sign.Sign([]byte("payload"), priv)
	require.NoError(t, err)
	require.NoError(t, sign.Verify([]byte("payload"), sig, blob))

	// Local keys also resolve as public blobs.
	got, err := s.PublicBlob(me)
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestCounterpartKeys(t *testing.T) {
	s := openTestStore(t)
	dso := model.Participant{Role: model.RoleDSO, Domain: "dso.example.net"}

	_, blob, err := sign.GenerateKeyPair([]byte("dso seed"))
	require.NoError(t, err)
	require.NoError(t, s.StoreCounterpart(dso, blob))

	got, err := s.PublicBlob(dso)
	require.NoError(t, err)
	require.Equal(t, blob, got)

	// Counterparts never expose a private key.
	_, err = s.PrivateKey(dso)
	require.Error(t, err)

	// Malformed blobs are rejected before storage.
	require.Error(t, s.StoreCounterpart(dso, "not-a-blob"))
}

func TestUnknownParticipant(t *testing.T) {
	s := openTestStore(t)
	p := model.Participant{Role: model.RoleBRP, Domain: "brp.example.org"}

	_, err := s.PrivateKey(p)
	require.Error(t, err)
	_, err = s.PublicBlob(p)
	require.Error(t, err)
}
