package mucleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

func TestService_SweepRemovesExpiredAttachmentAndBlob(t *testing.T) {
	dir := t.TempDir()
	aj, err := mujournal.OpenAttachmentJournal(filepath.Join(dir, "attachments", "index.jsonl"))
	require.NoError(t, err)
	defer aj.Close()

	blobRoot := filepath.Join(dir, "blobs")
	require.NoError(t, os.MkdirAll(blobRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blobRoot, "a1.bin"), []byte("x"), 0o644))

	require.NoError(t, aj.Put(mucore.AttachmentRecord{
		AttachmentID:  "att-1",
		ContentSHA256: "sha-1",
		BlobRelPath:   "a1.bin",
		ExpiresAtMs:   100,
	}))

	svc := New(aj, blobRoot, 50, time.Hour, func() int64 { return 200 }, nil)
	svc.sweep()

	_, ok := aj.Lookup("", "sha-1")
	assert.False(t, ok)
	_, statErr := os.Stat(filepath.Join(blobRoot, "a1.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestService_SweepRespectsBatchSize(t *testing.T) {
	dir := t.TempDir()
	aj, err := mujournal.OpenAttachmentJournal(filepath.Join(dir, "index.jsonl"))
	require.NoError(t, err)
	defer aj.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, aj.Put(mucore.AttachmentRecord{
			AttachmentID:  string(rune('a' + i)),
			ContentSHA256: string(rune('a' + i)),
			ExpiresAtMs:   100,
		}))
	}

	svc := New(aj, dir, 2, time.Hour, func() int64 { return 200 }, nil)
	svc.sweep()

	remaining := aj.Expired(200)
	assert.Len(t, remaining, 3)
}

func TestService_StartStop(t *testing.T) {
	dir := t.TempDir()
	aj, err := mujournal.OpenAttachmentJournal(filepath.Join(dir, "index.jsonl"))
	require.NoError(t, err)
	defer aj.Close()

	svc := New(aj, dir, 10, time.Millisecond, func() int64 { return 0 }, nil)
	svc.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	svc.Stop()
}
