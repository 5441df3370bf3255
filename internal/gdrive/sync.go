// Package gdrive backs up the bot's settings snapshot to a Google Drive
// folder.
package gdrive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const backupName = "wispr-bot-settings.yaml"

// Exporter produces the snapshot to back up.
type Exporter interface {
	ExportYAML() ([]byte, error)
}

type fileStore interface {
	Create(ctx context.Context, name, folderID string, content io.Reader) (string, error)
	Update(ctx context.Context, fileID string, content io.Reader) error
}

type driveFiles struct {
	service *drive.Service
}

func (d driveFiles) Create(ctx context.Context, name, folderID string, content io.Reader) (string, error) {
	f, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/x-yaml",
		Parents:  []string{folderID},
	}).Context(ctx).Media(content).Do()
	if err != nil {
		return "", fmt.Errorf("drive create: %w", err)
	}
	return f.Id, nil
}

func (d driveFiles) Update(ctx context.Context, fileID string, content io.Reader) error {
	if _, err := d.service.Files.Update(fileID, &drive.File{}).Context(ctx).Media(content).Do(); err != nil {
		return fmt.Errorf("drive update: %w", err)
	}
	return nil
}

// Syncer uploads the settings snapshot, creating the Drive file once and
// updating it afterwards. Unchanged snapshots are not re-uploaded.
type Syncer struct {
	files    fileStore
	folderID string
	logger   *slog.Logger

	mu     sync.Mutex
	fileID string
	digest [sha256.Size]byte
}

func NewSyncer(ctx context.Context, credPath, folderID string, logger *slog.Logger) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveFiles{service: svc}, folderID, logger), nil
}

func newSyncer(files fileStore, folderID string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{files: files, folderID: folderID, logger: logger.With("component", "gdrive")}
}

// Sync uploads the current snapshot if it changed since the last upload.
func (s *Syncer) Sync(ctx context.Context, exp Exporter) error {
	data, err := exp.ExportYAML()
	if err != nil {
		return fmt.Errorf("export settings: %w", err)
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileID != "" && sum == s.digest {
		return nil
	}

	if s.fileID != "" {
		if err := s.files.Update(ctx, s.fileID, bytes.NewReader(data)); err != nil {
			return err
		}
	} else {
		id, err := s.files.Create(ctx, backupName, s.folderID, bytes.NewReader(data))
		if err != nil {
			return err
		}
		s.fileID = id
	}

	s.digest = sum
	s.logger.Debug("settings backed up", "file", s.fileID, "bytes", len(data))
	return nil
}

// Run syncs every interval until ctx is cancelled, with a final sync on exit.
func (s *Syncer) Run(ctx context.Context, exp Exporter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Sync(finalCtx, exp); err != nil {
				s.logger.Warn("final settings backup failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Sync(ctx, exp); err != nil {
				s.logger.Warn("settings backup failed", "error", err)
			}
		}
	}
}
