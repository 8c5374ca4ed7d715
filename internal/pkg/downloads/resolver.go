package downloads

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

const defaultLinkTTL = 15 * time.Minute

// Delivery tells the HTTP layer how to hand the file out. Exactly one of RedirectURL and
// FilePath is set.
type Delivery struct {
	RedirectURL string
	FilePath    string
	FileName    string
}

// Resolver maps a logical file key to a deliverable.
type Resolver interface {
	Resolve(ctx context.Context, fileKey string) (*Delivery, error)
}

// NewResolverFromEnv builds the resolver selected by DOWNLOAD_STORAGE.
func NewResolverFromEnv(ctx context.Context) (Resolver, error) {
	driver := strings.ToLower(strings.TrimSpace(env.GetEnv("DOWNLOAD_STORAGE", "local")))
	switch driver {
	case "s3":
		return NewS3Resolver(ctx, S3ConfigFromEnv())
	case "minio":
		return NewMinIOResolver(ctx, MinIOConfigFromEnv())
	case "github":
		return NewGitHubReleaseResolverFromEnv()
	case "local", "":
		return NewLocalResolver(env.GetEnv("DOWNLOAD_LOCAL_DIR", "./downloads"))
	default:
		return nil, fmt.Errorf("%w: unknown DOWNLOAD_STORAGE %q", ErrNotConfigured, driver)
	}
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(fileKey string) (string, error) {
	key := strings.TrimSpace(fileKey)
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrFileNotFound
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key {
		return "", ErrFileNotFound
	}
	return cleaned, nil
}

func attachmentDisposition(fileName string) string {
	return fmt.Sprintf("attachment; filename=%q", fileName)
}
