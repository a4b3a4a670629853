package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("uploads: object not found")

// Storage stores uploaded attachments such as product images. Keys are
// slash-separated paths minted by this package.
type Storage interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// allowed image extensions, lowercased
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// NewImageKey mints a storage key for a product image. The original
// filename only contributes its extension; the key itself is random so
// uploads never collide or expose user-supplied names.
func NewImageKey(orgID, productID int64, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !imageExtensions[ext] {
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}
	return fmt.Sprintf("orgs/%d/products/%d/%s%s", orgID, productID, uuid.NewString(), ext), nil
}

// validKey rejects empty keys and path traversal.
func validKey(key string) error {
	if key == "" {
		return errors.New("uploads: empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("uploads: invalid key %q", key)
	}
	return nil
}
