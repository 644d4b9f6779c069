package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records uploads and deletions and serves a canned object list.
type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	objects   []Object
	deleted   []string
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Object
	for _, obj := range f.objects {
		if len(obj.Key) >= len(prefix) && obj.Key[:len(prefix)] == prefix {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

// fileSnapshotter writes fixed content to the destination path.
type fileSnapshotter struct {
	content []byte
}

func (s fileSnapshotter) SnapshotTo(dest string) error {
	return os.WriteFile(dest, s.content, 0644)
}

func newTestService(t *testing.T, store ObjectStore, retentionDays int) *Service {
	t.Helper()
	sources := []Source{
		{Name: "config", DB: fileSnapshotter{content: []byte("config-bytes")}},
		{Name: "results", DB: fileSnapshotter{content: []byte("results-bytes")}},
	}
	return NewService(store, sources, t.TempDir(), "allocator", retentionDays, nil, zerolog.Nop())
}

func archiveKey(ts time.Time) string {
	return "allocator/" + archivePrefix + ts.Format(timestampFmt) + archiveSuffix
}

func TestCreateAndUploadArchiveContents(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, 7)

	info, err := svc.CreateAndUpload(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Greater(t, info.SizeBytes, int64(0))

	require.Len(t, store.uploads, 1)
	data, ok := store.uploads[info.Key]
	require.True(t, ok, "upload key must match the returned info")
	assert.Contains(t, info.Key, "allocator/"+archivePrefix)

	// Unpack the archive and verify every expected entry is present.
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	entries := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = content
	}

	assert.Equal(t, []byte("config-bytes"), entries["config.db"])
	assert.Equal(t, []byte("results-bytes"), entries["results.db"])

	var metadata Metadata
	require.NoError(t, json.Unmarshal(entries["backup-metadata.json"], &metadata))
	require.Len(t, metadata.Databases, 2)
	assert.Equal(t, "config", metadata.Databases[0].Name)
	assert.Equal(t, int64(len("config-bytes")), metadata.Databases[0].SizeBytes)
	assert.Contains(t, metadata.Databases[0].Checksum, "sha256:")
}

func TestCreateAndUploadPropagatesStoreError(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = fmt.Errorf("bucket unavailable")
	svc := newTestService(t, store, 7)

	_, err := svc.CreateAndUpload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestListBackupsOrderAndFiltering(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := newFakeStore()
	store.objects = []Object{
		{Key: archiveKey(now.Add(-48 * time.Hour)), Size: 10},
		{Key: archiveKey(now), Size: 30},
		{Key: archiveKey(now.Add(-24 * time.Hour)), Size: 20},
		{Key: "allocator/" + archivePrefix + "not-a-timestamp" + archiveSuffix, Size: 5},
		{Key: "allocator/unrelated.txt", Size: 1},
	}
	svc := newTestService(t, store, 7)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3, "malformed names are skipped")

	assert.Equal(t, int64(30), backups[0].SizeBytes, "newest first")
	assert.Equal(t, int64(20), backups[1].SizeBytes)
	assert.Equal(t, int64(10), backups[2].SizeBytes)
	assert.GreaterOrEqual(t, backups[2].AgeHours, int64(47))
}

func TestRotateKeepsMinimumAndDeletesExpired(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	// Five backups: two recent, three well past a 7-day retention.
	for _, age := range []time.Duration{
		time.Hour,
		25 * time.Hour,
		10 * 24 * time.Hour,
		11 * 24 * time.Hour,
		12 * 24 * time.Hour,
	} {
		store.objects = append(store.objects, Object{Key: archiveKey(now.Add(-age)), Size: 1})
	}
	svc := newTestService(t, store, 7)

	require.NoError(t, svc.RotateOldBackups(context.Background()))

	// The three newest survive even though the third is past retention.
	require.Len(t, store.deleted, 2)
	assert.Contains(t, store.deleted, archiveKey(now.Add(-11*24*time.Hour)))
	assert.Contains(t, store.deleted, archiveKey(now.Add(-12*24*time.Hour)))
}

func TestRotateRetentionZeroKeepsEverything(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	for i := 0; i < 6; i++ {
		store.objects = append(store.objects, Object{
			Key:  archiveKey(now.Add(-time.Duration(i*30*24) * time.Hour)),
			Size: 1,
		})
	}
	svc := newTestService(t, store, 0)

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}

func TestRotateTooFewBackups(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.objects = []Object{
		{Key: archiveKey(now.Add(-100 * 24 * time.Hour)), Size: 1},
		{Key: archiveKey(now.Add(-200 * 24 * time.Hour)), Size: 1},
	}
	svc := newTestService(t, store, 1)

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}
