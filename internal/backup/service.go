package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
)

const (
	archivePrefix = "allocator-backup-"
	archiveSuffix = ".tar.gz"
	timestampFmt  = "2006-01-02-150405"

	// Rotation never deletes below this many archives, regardless of age.
	minBackupsToKeep = 3
)

// Snapshotter is any database that can write a consistent copy of itself to
// a file.
type Snapshotter interface {
	SnapshotTo(dest string) error
}

// Source pairs a database with the name it carries inside the archive.
type Source struct {
	Name string
	DB   Snapshotter
}

// Metadata describes the contents of one backup archive. It travels inside
// the archive as backup-metadata.json.
type Metadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database snapshot in the archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Info summarizes a backup stored in the bucket.
type Info struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Service snapshots the databases, archives them, and manages the remote
// copies.
type Service struct {
	store         ObjectStore
	sources       []Source
	dataDir       string
	keyPrefix     string
	retentionDays int
	eventManager  *events.Manager
	log           zerolog.Logger
}

// NewService creates a backup service. keyPrefix scopes archives inside a
// shared bucket and may be empty. retentionDays of 0 keeps archives forever.
func NewService(
	store ObjectStore,
	sources []Source,
	dataDir string,
	keyPrefix string,
	retentionDays int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:         store,
		sources:       sources,
		dataDir:       dataDir,
		keyPrefix:     keyPrefix,
		retentionDays: retentionDays,
		eventManager:  eventManager,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload snapshots every source database, packs the snapshots and a
// metadata file into a tar.gz archive, and uploads it.
func (s *Service) CreateAndUpload(ctx context.Context) (*Info, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := Metadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Databases: make([]DatabaseMetadata, 0, len(s.sources)),
	}

	for _, src := range s.sources {
		filename := src.Name + ".db"
		dbPath := filepath.Join(stagingDir, filename)

		s.log.Debug().Str("database", src.Name).Msg("Snapshotting database")

		if err := src.DB.SnapshotTo(dbPath); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", src.Name, err)
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s snapshot: %w", src.Name, err)
		}

		checksum, err := calculateChecksum(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate checksum for %s: %w", src.Name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      src.Name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := archivePrefix + metadata.Timestamp.Format(timestampFmt) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)

	archiveFiles := make([]string, 0, len(metadata.Databases)+1)
	for _, db := range metadata.Databases {
		archiveFiles = append(archiveFiles, db.Filename)
	}
	archiveFiles = append(archiveFiles, "backup-metadata.json")

	if err := createArchive(archivePath, stagingDir, archiveFiles); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	key := s.objectKey(archiveName)
	if err := s.store.Upload(ctx, key, archiveFile, archiveInfo.Size()); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	duration := time.Since(startTime)
	s.log.Info().
		Str("archive", key).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Dur("duration_ms", duration).
		Msg("Backup completed")

	if s.eventManager != nil {
		s.eventManager.EmitTyped(events.BackupCompleted, "backup", &events.BackupCompletedData{
			Files:    len(s.sources),
			Bytes:    archiveInfo.Size(),
			Duration: duration.Milliseconds(),
		})
	}

	return &Info{
		Key:       key,
		Timestamp: metadata.Timestamp,
		SizeBytes: archiveInfo.Size(),
	}, nil
}

// ListBackups lists stored archives, newest first. Objects whose names do
// not parse as backup archives are skipped.
func (s *Service) ListBackups(ctx context.Context) ([]Info, error) {
	objects, err := s.store.List(ctx, s.objectKey(archivePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]Info, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		basename := path.Base(obj.Key)
		if !strings.HasPrefix(basename, archivePrefix) || !strings.HasSuffix(basename, archiveSuffix) {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(basename, archivePrefix), archiveSuffix)
		timestamp, err := time.Parse(timestampFmt, timestampStr)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from archive name")
			continue
		}

		backups = append(backups, Info{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than the retention period, always
// keeping the newest minBackupsToKeep. Retention of 0 keeps everything.
func (s *Service) RotateOldBackups(ctx context.Context) error {
	s.log.Info().Int("retention_days", s.retentionDays).Msg("Starting backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep {
		s.log.Info().Int("count", len(backups)).Msg("Too few backups to rotate")
		return nil
	}
	if s.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}
		if !backup.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().
			Str("key", backup.Key).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

// objectKey scopes an archive name under the configured prefix.
func (s *Service) objectKey(name string) string {
	if s.keyPrefix == "" {
		return name
	}
	return strings.TrimSuffix(s.keyPrefix, "/") + "/" + name
}

// calculateChecksum computes the SHA256 checksum of a file.
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes backup metadata as indented JSON.
func writeMetadata(path string, metadata Metadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive packs the named files from sourceDir into a tar.gz archive.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}
	return nil
}

// addFileToArchive appends one file to an open tar archive.
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}
	return nil
}
