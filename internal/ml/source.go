package ml

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// Source supplies artifact files by name.
type Source interface {
	// Open returns the named artifact. Callers must close the reader.
	// A missing artifact yields an error wrapping fs.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// DirSource reads artifacts from a local directory.
type DirSource struct {
	Dir string
}

func (d DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return f, nil
}

func (d DirSource) String() string { return "dir:" + d.Dir }

// BlobSource reads artifacts from an Azure Blob Storage container.
type BlobSource struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewBlobSource builds a client from a storage connection string. No
// request is made until the first Open.
func NewBlobSource(connectionString, container, prefix string) (*BlobSource, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &BlobSource{client: client, container: container, prefix: strings.Trim(prefix, "/")}, nil
}

func (b *BlobSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	key := name
	if b.prefix != "" {
		key = b.prefix + "/" + name
	}

	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("download artifact %s: %w", key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("download artifact %s: %w", key, err)
	}
	return resp.Body, nil
}

func (b *BlobSource) String() string {
	if b.prefix == "" {
		return "azblob:" + b.container
	}
	return "azblob:" + b.container + "/" + b.prefix
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w %q", errInvalidName, name)
	}
	return nil
}
