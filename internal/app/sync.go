package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"intradaySync/config"
	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
)

// SyncStats counts per-file outcomes of a sync phase.
type SyncStats struct {
	Transferred int
	Missing     int // Download: no remote blob yet. Upload: no local file.
	Failed      int
	// Errors holds the cause of each failed transfer.
	Errors map[domain.Ticker]error
}

func (s *SyncStats) fail(ticker domain.Ticker, err error) {
	s.Failed++
	if s.Errors == nil {
		s.Errors = make(map[domain.Ticker]error)
	}
	s.Errors[ticker] = err
}

// Sync mirrors series files between the local data directory and one remote folder.
// It never looks inside the files.
type Sync struct {
	cfg    *config.Config
	logger ports.Logger
	blobs  ports.BlobStore
	store  ports.SeriesStore
}

// NewSync creates a sync adapter for cfg.RemoteFolderID.
func NewSync(cfg *config.Config, logger ports.Logger, blobs ports.BlobStore, store ports.SeriesStore) (*Sync, error) {
	if cfg == nil || logger == nil || blobs == nil || store == nil {
		return nil, fmt.Errorf("missing required dependencies for Sync")
	}
	if cfg.RemoteFolderID == "" {
		return nil, fmt.Errorf("%w: GDRIVE_FOLDER_ID must be set", ports.ErrConfigurationError)
	}
	return &Sync{cfg: cfg, logger: logger, blobs: blobs, store: store}, nil
}

// Connect proves the remote session works against the configured folder.
func (s *Sync) Connect(ctx context.Context) error {
	if err := s.blobs.Ping(ctx, s.cfg.RemoteFolderID); err != nil {
		return fmt.Errorf("remote session for folder %s: %w", s.cfg.RemoteFolderID, err)
	}
	s.logger.Info(ctx, "Remote session established", map[string]interface{}{"folderID": s.cfg.RemoteFolderID})
	return nil
}

// Locate returns the first non-trashed blob named filename in folder, or nil.
func (s *Sync) Locate(ctx context.Context, folder, filename string) (*domain.BlobRef, error) {
	refs, err := s.blobs.Find(ctx, folder, filename)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", filename, err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	if len(refs) > 1 {
		s.logger.Warn(ctx, "Several remote files share a name, using the first", map[string]interface{}{
			"file":  filename,
			"count": len(refs),
			"id":    refs[0].ID,
		})
	}
	ref := refs[0]
	return &ref, nil
}

// DownloadAll refreshes the local copy of every ticker's series from remote.
// Tickers without a remote blob keep their local state. Tickers whose remote
// state could not be read are listed in the returned stats' Errors; callers
// must not collect or upload them in this run.
func (s *Sync) DownloadAll(ctx context.Context, tickers []domain.Ticker) (SyncStats, error) {
	var stats SyncStats
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fields := map[string]interface{}{"ticker": string(ticker), "file": ticker.FileName()}

		found, err := s.download(ctx, ticker)
		switch {
		case err != nil:
			stats.fail(ticker, err)
			s.logger.Error(ctx, err, "Download failed, ticker held back for this run", fields)
		case !found:
			stats.Missing++
			s.logger.Info(ctx, "No remote copy, will create new", fields)
		default:
			stats.Transferred++
			s.logger.Info(ctx, "Downloaded series", fields)
		}
	}
	return stats, nil
}

func (s *Sync) download(ctx context.Context, ticker domain.Ticker) (bool, error) {
	if err := s.store.EnsureDir(ticker); err != nil {
		return false, err
	}
	ref, err := s.Locate(ctx, s.cfg.RemoteFolderID, ticker.FileName())
	if err != nil || ref == nil {
		return false, err
	}

	dst := s.store.Path(ticker)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ticker.FileName()+".*.download")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file for '%s': %w", dst, err)
	}
	defer os.Remove(tmp.Name())

	err = s.blobs.Download(ctx, ref.ID, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return false, fmt.Errorf("download %s: %w", ticker.FileName(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return false, fmt.Errorf("failed to move download into place '%s': %w", dst, err)
	}
	return true, nil
}

// UploadAll pushes every local series file to remote.
func (s *Sync) UploadAll(ctx context.Context, tickers []domain.Ticker) (SyncStats, error) {
	var stats SyncStats
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fields := map[string]interface{}{"ticker": string(ticker), "file": ticker.FileName()}

		if !s.store.Exists(ticker) {
			stats.Missing++
			s.logger.Debug(ctx, "No local file to upload", fields)
			continue
		}
		if err := s.upload(ctx, ticker); err != nil {
			stats.fail(ticker, err)
			s.logger.Error(ctx, err, "Upload failed, continuing", fields)
			continue
		}
		stats.Transferred++
		s.logger.Info(ctx, "Uploaded series", fields)
	}
	return stats, nil
}

func (s *Sync) upload(ctx context.Context, ticker domain.Ticker) error {
	f, err := os.Open(s.store.Path(ticker))
	if err != nil {
		return fmt.Errorf("failed to open series file: %w", err)
	}
	defer f.Close()
	_, err = s.Upsert(ctx, s.cfg.RemoteFolderID, ticker.FileName(), f)
	return err
}

// Upsert updates the blob named name in folder in place, or creates it.
// It returns the blob id.
func (s *Sync) Upsert(ctx context.Context, folder, name string, content io.Reader) (string, error) {
	ref, err := s.Locate(ctx, folder, name)
	if err != nil {
		return "", err
	}
	if ref != nil {
		if err := s.blobs.Update(ctx, ref.ID, content); err != nil {
			return "", fmt.Errorf("update %s: %w", name, err)
		}
		return ref.ID, nil
	}
	id, err := s.blobs.Create(ctx, folder, name, content)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return id, nil
}
