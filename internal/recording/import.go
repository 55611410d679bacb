package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database/models"
)

var (
	// ErrUnknownTenant is returned for uploads to a domain with no tenant.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrInvalidFile is returned for file names outside the tenant's root or
	// with an unsupported extension.
	ErrInvalidFile = errors.New("invalid recording file")

	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("recording too large")
)

// TenantFinder looks tenants up by domain.
type TenantFinder interface {
	GetByName(ctx context.Context, name string) (*models.Tenant, error)
}

// Importer saves recordings uploaded by the switches into the recordings
// store. Uploads of the same file are serialized by the store.
type Importer struct {
	tenants  TenantFinder
	store    blob.Blob
	maxBytes int64
	logger   *slog.Logger
}

// NewImporter creates an Importer. maxBytes <= 0 disables the size limit.
func NewImporter(tenants TenantFinder, store blob.Blob, maxBytes int64, logger *slog.Logger) *Importer {
	return &Importer{tenants: tenants, store: store, maxBytes: maxBytes, logger: logger}
}

// Name validates an uploaded file name and returns its store name,
// <domain>/<file>.
func Name(domain, file string) (string, error) {
	if domain == "" || strings.ContainsAny(domain, "/\\") {
		return "", ErrInvalidFile
	}
	clean, err := blob.Clean(file)
	if err != nil {
		return "", ErrInvalidFile
	}
	if !slices.Contains(Extensions, strings.ToLower(path.Ext(clean))) {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidFile, path.Ext(clean))
	}
	return path.Join(domain, clean), nil
}

// Import stores r as file of the tenant owning domain and returns the store
// name.
func (im *Importer) Import(ctx context.Context, domain, file string, r io.Reader) (string, error) {
	name, err := Name(domain, file)
	if err != nil {
		return "", err
	}
	tenant, err := im.tenants.GetByName(ctx, domain)
	if err != nil {
		return "", err
	}
	if tenant == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTenant, domain)
	}

	if im.maxBytes > 0 {
		r = &limitReader{r: r, n: im.maxBytes}
	}
	if err := im.store.Save(ctx, name, r); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return "", ErrTooLarge
		}
		return "", fmt.Errorf("saving recording %s: %w", name, err)
	}
	im.logger.Info("recording imported", "name", name, "tenant_id", tenant.ID)
	return name, nil
}

// limitReader fails with ErrTooLarge once more than n bytes are read.
type limitReader struct {
	r io.Reader
	n int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
