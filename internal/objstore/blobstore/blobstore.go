// Package blobstore is the Azure Blob Storage objstore backend. It authenticates
// with the shared key from a standard connection string and also works
// against a local Azurite emulator over plain HTTP.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
)

func init() {
	objstore.Register("azblob", func(_ context.Context, cfg objstore.Config) (objstore.Store, error) {
		return New(cfg.ConnectionString, cfg.Container)
	})
}

// Store is a container-scoped blob client.
type Store struct {
	client     *azblob.Client
	serviceURL string
	container  string

	initOnce sync.Once
	initErr  error
}

// New creates a Store from a connection string of the form
// "AccountName=...;AccountKey=...;BlobEndpoint=...". BlobEndpoint defaults to
// the public endpoint of the account.
func New(connectionString, container string) (*Store, error) {
	if connectionString == "" {
		return nil, errors.New("azblob: connection string is required")
	}
	if container == "" {
		return nil, errors.New("azblob: container name is required")
	}

	accountName, accountKey, serviceURL, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azblob: shared key credential: %w", err)
	}

	var opts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		opts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{InsecureAllowCredentialWithHTTP: true},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("azblob: create client: %w", err)
	}

	return &Store{client: client, serviceURL: serviceURL, container: container}, nil
}

// ParseConnectionString extracts the account name, key and service URL.
func ParseConnectionString(cs string) (account, key, serviceURL string, err error) {
	params := make(map[string]string)
	for _, part := range strings.Split(cs, ";") {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}

	account, key, serviceURL = params["AccountName"], params["AccountKey"], params["BlobEndpoint"]
	if account == "" || key == "" {
		return "", "", "", errors.New("azblob: AccountName and AccountKey are required in the connection string")
	}
	if serviceURL == "" {
		protocol := params["DefaultEndpointsProtocol"]
		if protocol == "" {
			protocol = "https"
		}
		suffix := params["EndpointSuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		serviceURL = fmt.Sprintf("%s://%s.blob.%s", protocol, account, suffix)
	}
	return account, key, strings.TrimRight(serviceURL, "/"), nil
}

// Get downloads the blob at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%w: %s", objstore.ErrNotFound, s.Location(key))
		}
		return nil, fmt.Errorf("azblob: download %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("azblob: read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Put uploads data as a block blob, creating the container on first use.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.ensureContainer(ctx); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return fmt.Errorf("azblob: upload %s (%d bytes): %w", key, len(data), err)
	}
	return nil
}

// Location returns the blob URL for key.
func (s *Store) Location(key string) string {
	return s.serviceURL + "/" + s.container + "/" + strings.TrimPrefix(key, "/")
}

func (s *Store) ensureContainer(ctx context.Context) error {
	s.initOnce.Do(func() {
		_, err := s.client.CreateContainer(ctx, s.container, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			s.initErr = fmt.Errorf("azblob: ensure container %s: %w", s.container, err)
		}
	})
	return s.initErr
}
