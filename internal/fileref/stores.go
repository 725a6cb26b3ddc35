package fileref

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"isi-import/internal/config"
)

// NewFromConfig builds a Resolver with a fetcher for every object store that
// has credentials in cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Resolver, error) {
	var opts []Option
	if cfg.Storage.HasS3Config() {
		opts = append(opts, WithFetcher("s3", NewS3Fetcher(&cfg.Storage)))
	}
	if cfg.Storage.GCSKeyFile != "" {
		f, err := NewGCSFetcher(ctx, cfg.Storage.GCSKeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFetcher("gs", f))
	}
	if cfg.Storage.HasAzureConfig() {
		f, err := NewAzureFetcher(cfg.Storage.AzureAccountName, cfg.Storage.AzureAccountKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFetcher("az", f))
	}
	return NewResolver(cfg.AllowedFileRoots, cfg.FileCacheDir, logger, opts...)
}

// S3Fetcher downloads s3://bucket/key references from S3-compatible storage.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher creates a fetcher using static credentials and path-style
// addressing. The caller checks HasS3Config first.
func NewS3Fetcher(sc *config.StorageConfig) *S3Fetcher {
	endpoint := *sc.S3Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	client := s3.New(s3.Options{
		Region: *sc.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			*sc.S3KeyID, *sc.S3Secret, "",
		),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})
	return &S3Fetcher{client: client}
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, ref string, w io.Writer) error {
	bucket, key, err := ParseObjectRef(ref, "s3")
	if err != nil {
		return err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3 object %q: %w", ref, err)
	}
	defer out.Body.Close() //nolint:errcheck
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("read s3 object %q: %w", ref, err)
	}
	return nil
}

// GCSFetcher downloads gs://bucket/key references.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a fetcher authenticated with a service account key file.
func NewGCSFetcher(ctx context.Context, keyFile string) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, ref string, w io.Writer) error {
	bucket, key, err := ParseObjectRef(ref, "gs")
	if err != nil {
		return err
	}
	rd, err := f.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open GCS object %q: %w", ref, err)
	}
	defer rd.Close() //nolint:errcheck
	if _, err := io.Copy(w, rd); err != nil {
		return fmt.Errorf("read GCS object %q: %w", ref, err)
	}
	return nil
}

// AzureFetcher downloads az://container/blob references.
// Only account-key authentication is supported.
type AzureFetcher struct {
	client *azblob.Client
}

// NewAzureFetcher creates a fetcher for the given storage account.
func NewAzureFetcher(accountName, accountKey string) (*AzureFetcher, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureFetcher{client: client}, nil
}

// Fetch implements Fetcher.
func (f *AzureFetcher) Fetch(ctx context.Context, ref string, w io.Writer) error {
	container, blob, err := ParseObjectRef(ref, "az")
	if err != nil {
		return err
	}
	resp, err := f.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return fmt.Errorf("download Azure blob %q: %w", ref, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read Azure blob %q: %w", ref, err)
	}
	return nil
}

// ParseObjectRef extracts bucket (or container) and key from a
// "<scheme>://bucket/path/to/file" reference.
func ParseObjectRef(ref, scheme string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse object reference %q: %w", ref, err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", "", fmt.Errorf("expected %s:// scheme, got %q in %q", scheme, u.Scheme, ref)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in %q", ref)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty key in %q", ref)
	}
	return bucket, key, nil
}
