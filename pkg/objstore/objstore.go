// Package objstore wraps the AWS SDK v2 S3 client for artifact delivery.
//
// Every transmit failure is classified into a closed set before it reaches
// the caller: ErrCredentialsMissing, ErrCredentialsIncomplete, ErrNetwork,
// *RejectedError (a remote rejection carrying the service error code), or
// the original error when none of those apply.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrCredentialsMissing indicates no key material is available at all.
	ErrCredentialsMissing = errors.New("object storage credentials not available")
	// ErrCredentialsIncomplete indicates partial key material (access key
	// without secret, or the reverse). This is an operator configuration
	// problem, not a transient condition.
	ErrCredentialsIncomplete = errors.New("object storage credentials incomplete")
	// ErrNetwork indicates a connectivity-class transmit failure.
	ErrNetwork = errors.New("network connection failure")
)

// RejectedError is a remote rejection that retrying will not fix.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("object storage rejected request: %s: %s", e.Code, e.Message)
}

// Options configure a Client. Zero values fall back to environment variables
// and defaults, see NewClientFromEnv.
type Options struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	DisableTLS     bool
	ForcePathStyle bool
}

// Client is a thin wrapper around the AWS SDK v2 S3 client tuned for
// S3-compatible endpoints.
type Client struct {
	opts Options

	mu  sync.Mutex
	api *s3.Client
}

// NewClientFromEnv initialises a Client using environment variables.
//
// Recognised variables:
//   - S3_BUCKET: destination bucket (required).
//   - S3_ENDPOINT: optional host:port or full URL for S3-compatible stores.
//   - S3_ACCESS_KEY / S3_SECRET_KEY (or the AWS_* equivalents): static
//     credentials. Absence is not an error here; Put reports it through the
//     failure taxonomy so the delivery queue can decide retry behaviour.
//   - S3_REGION (default "us-east-1").
//   - S3_DISABLE_TLS (bool; default false).
//   - S3_FORCE_PATH_STYLE (bool; default true when an endpoint is set).
func NewClientFromEnv() (*Client, error) {
	opts := Options{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    os.Getenv("S3_REGION"),
		Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKey: firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretKey: firstNonEmpty(os.Getenv("S3_SECRET_KEY"), os.Getenv("AWS_SECRET_ACCESS_KEY")),
	}
	if opts.Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}

	opts.DisableTLS, _ = strconv.ParseBool(os.Getenv("S3_DISABLE_TLS"))
	opts.ForcePathStyle = opts.Endpoint != ""
	if v := strings.TrimSpace(os.Getenv("S3_FORCE_PATH_STYLE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			opts.ForcePathStyle = parsed
		}
	}

	return NewClient(opts), nil
}

// NewClient constructs a Client from explicit options.
func NewClient(opts Options) *Client {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	return &Client{opts: opts}
}

// Bucket returns the configured destination bucket.
func (c *Client) Bucket() string { return c.opts.Bucket }

// Put uploads body to the configured bucket under key, marking the payload
// with the given content encoding and requesting AES256 server-side
// encryption. The returned error, if any, is classified.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentEncoding string) error {
	if c == nil {
		return errors.New("nil client")
	}
	if err := c.checkCredentials(); err != nil {
		return err
	}

	api, err := c.apiClient(ctx)
	if err != nil {
		return classifyTransmit(err)
	}

	input := &s3.PutObjectInput{
		Bucket:               aws.String(c.opts.Bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if contentEncoding != "" {
		input.ContentEncoding = aws.String(contentEncoding)
	}

	if _, err := api.PutObject(ctx, input); err != nil {
		return classifyTransmit(err)
	}
	return nil
}

func (c *Client) checkCredentials() error {
	access := strings.TrimSpace(c.opts.AccessKey)
	secret := strings.TrimSpace(c.opts.SecretKey)
	switch {
	case access == "" && secret == "":
		return ErrCredentialsMissing
	case access == "" || secret == "":
		return ErrCredentialsIncomplete
	default:
		return nil
	}
}

func (c *Client) apiClient(ctx context.Context) (*s3.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(c.opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.opts.AccessKey, c.opts.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	endpoint := c.opts.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if c.opts.DisableTLS {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	c.api = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = c.opts.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return c.api, nil
}

// classifyTransmit maps an SDK error onto the closed failure taxonomy.
// Context cancellation passes through untouched so shutdown is not mistaken
// for a delivery failure.
func classifyTransmit(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if isConnectivityMessage(err.Error()) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &RejectedError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	}

	return err
}

func isConnectivityMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "timeout")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
