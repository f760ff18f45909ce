package artifact

import (
	"context"
	"fmt"

	"github.com/achouhan93/clusterchat-go/internal/config"
)

// New selects a Store implementation per cfg.ArtifactBackend ("disk" or
// "s3"), mirroring the teacher's backend-by-name factory in
// internal/persistence/databases/factory.go.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.ArtifactBackend {
	case "", "disk":
		return NewDisk(cfg.ArtifactDir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("artifact: unknown backend %q", cfg.ArtifactBackend)
	}
}
