package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownloadSignerSignAndVerify(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("sem-1", "sem-1/timetable-odd-2026-2027.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	semesterID, path, parsedExpiry, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "sem-1", semesterID)
	require.Equal(t, "sem-1/timetable-odd-2026-2027.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestDownloadSignerExpired(t *testing.T) {
	signer := &DownloadSigner{secret: []byte("secret"), ttl: -time.Hour}
	token, _, err := signer.Sign("sem-1", "sem-1/file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Verify(token)
	require.Error(t, err)
}

func TestDownloadSignerTamperedToken(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Sign("sem-1", "sem-1/file.pdf")
	require.NoError(t, err)

	other := NewDownloadSigner("different", time.Hour)
	_, _, _, err = other.Verify(token)
	require.Error(t, err)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	require.Error(t, err)

	rel, err := store.Save("sem-1/grid.csv", []byte("a,b"))
	require.NoError(t, err)

	data, err := store.Read(rel)
	require.NoError(t, err)
	require.Equal(t, []byte("a,b"), data)
}
