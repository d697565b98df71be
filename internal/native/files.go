package native

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/capability"
)

// Files performs file transfers under a downloads root, one directory per
// storage namespace.
type Files struct {
	dir    string
	logger *zap.Logger
}

// NewFiles creates a file layer rooted at dir.
func NewFiles(dir string, logger *zap.Logger) *Files {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Files{dir: dir, logger: logger.Named("files")}
}

// Download writes file to <dir>/<namespace>/<name> and returns the path.
func (f *Files) Download(ctx context.Context, namespace string, file capability.Download) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("download cancelled: %w", ctx.Err())
	default:
	}

	target := filepath.Join(f.dir, namespace)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	path := filepath.Join(target, filepath.Base(file.FileName))

	tmp, err := os.CreateTemp(target, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(file.Content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}

	detected := mimetype.Detect(file.Content)
	f.logger.Info("download saved",
		zap.String("path", path),
		zap.Int("size", len(file.Content)),
		zap.String("declared_type", file.ContentType),
		zap.String("detected_type", detected.String()))
	return path, nil
}

// Upload is simulated: there is no picker on a headless host, so it
// succeeds without transferring anything.
func (f *Files) Upload(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.logger.Info("upload simulated", zap.String("namespace", namespace))
	return nil
}

// ContentType sniffs the type of a saved download.
func ContentType(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}
