package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralt/rpmmd"
	"github.com/ralt/rpmmd/backend"
)

func parseCompression(name string) (rpmmd.CompressionType, error) {
	switch name {
	case "none":
		return rpmmd.CompressionNone, nil
	case "gzip":
		return rpmmd.CompressionGzip, nil
	case "bzip2":
		return rpmmd.CompressionBzip2, nil
	case "xz":
		return rpmmd.CompressionXz, nil
	case "zstd":
		return rpmmd.CompressionZstd, nil
	default:
		return rpmmd.CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

// openBackend picks the storage backend from the root's scheme.
func openBackend(ctx context.Context, root, endpoint string) (backend.Backend, error) {
	if strings.HasPrefix(root, "s3://") {
		return backend.NewS3Backend(ctx, root, endpoint)
	}
	return backend.NewFSBackend(root), nil
}
