// Package storage guarda certificados A1 e XML autorizados (nfeProc, eventos).
package storage

import (
	"context"

	"github.com/jhoicas/emissor-fiscal/internal/application/emission"
	"github.com/jhoicas/emissor-fiscal/pkg/config"
)

// New escolhe o driver configurado em STORAGE_DRIVER.
func New(ctx context.Context, cfg config.StorageConfig) (emission.ArtifactStore, error) {
	if cfg.Driver == "s3" {
		return NewS3Store(ctx, cfg)
	}
	return NewFSStore(cfg.BaseDir)
}
