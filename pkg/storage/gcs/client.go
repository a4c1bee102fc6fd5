package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcsapi "google.golang.org/api/storage/v1"

	"github.com/agritrade/agritrade-backend/pkg/config"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/storage"
)

const pingTimeout = 5 * time.Second

// Client stores workflow artifacts in a single GCS bucket.
type Client struct {
	svc           *gcsapi.Service
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds the bucket client. Credentials come from the JSON in
// config when present, otherwise from the default application credentials.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger, opts ...option.ClientOption) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(gcsapi.DevstorageReadWriteScope)}
	if gcp.CredentialsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gcsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs service: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}

	client := &Client{
		svc:           svc,
		bucket:        cfg.BucketName,
		publicBaseURL: base,
		now:           time.Now,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping lists at most one object, which requires storage.objects.list.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.svc.Objects.List(c.bucket).MaxResults(1).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcs object check failed: %w", err)
	}
	return nil
}

// Upload writes the file under its category prefix and returns the public URL.
func (c *Client) Upload(ctx context.Context, file *storage.File, category storage.Category) (string, error) {
	if file.Empty() {
		return "", errors.New("file payload required")
	}
	if !category.IsValid() {
		return "", fmt.Errorf("unknown storage category %q", category)
	}

	object := &gcsapi.Object{
		Name:        storage.ObjectName(category, file.Name, c.now()),
		ContentType: file.ContentType,
		Metadata: map[string]string{
			"original_name": file.Name,
		},
	}
	call := c.svc.Objects.Insert(c.bucket, object).Name(object.Name).Context(ctx)
	if file.ContentType != "" {
		call = call.Media(file.Body, googleapi.ContentType(file.ContentType))
	} else {
		call = call.Media(file.Body)
	}
	stored, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object.Name, err)
	}
	return c.publicURL(stored.Name), nil
}

// Delete removes the object behind url. Objects that are already gone count
// as deleted.
func (c *Client) Delete(ctx context.Context, url string) error {
	name, err := c.objectName(url)
	if err != nil {
		return err
	}
	err = c.svc.Objects.Delete(c.bucket, name).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (c *Client) publicURL(object string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, object)
}

func (c *Client) objectName(url string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", c.publicBaseURL, c.bucket)
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", fmt.Errorf("url %q is not in bucket %s", url, c.bucket)
	}
	return strings.TrimPrefix(url, prefix), nil
}
