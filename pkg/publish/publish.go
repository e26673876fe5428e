// Package publish uploads finished bundles to object storage.
package publish

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

// Supported URI schemes.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// Options configure the storage clients.
type Options struct {
	// Region is the AWS region; empty uses the SDK default chain.
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint (S3-compatible stores, emulators).
	Endpoint string `yaml:"endpoint"`
	// CredentialsFile is a GCS service-account key file.
	CredentialsFile string `yaml:"credentials_file"`
	// Anonymous disables request signing.
	Anonymous bool `yaml:"anonymous"`
	// ContentType is stored with the object.
	ContentType string `yaml:"content_type"`
}

// Location is a parsed object URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// String renders the location back as a URI.
func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseURI parses "s3://bucket/key" or "gs://bucket/object".
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeValidation, "invalid publish uri")
	}
	loc := Location{
		Scheme: strings.ToLower(u.Scheme),
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}
	if loc.Scheme != SchemeS3 && loc.Scheme != SchemeGCS {
		return Location{}, errors.Newf(errors.ErrorTypeValidation, "unsupported publish scheme %q", u.Scheme)
	}
	if loc.Bucket == "" || loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
		return Location{}, errors.Newf(errors.ErrorTypeValidation, "publish uri %q needs a bucket and an object key", uri)
	}
	return loc, nil
}

// Publisher uploads one object.
type Publisher interface {
	Upload(ctx context.Context, body io.Reader) error
	Location() Location
	Close() error
}

// New returns the publisher for uri.
func New(ctx context.Context, uri string, opts Options, logger *zap.Logger) (Publisher, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "publish"), zap.String("uri", loc.String()))
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	switch loc.Scheme {
	case SchemeS3:
		return newS3Publisher(ctx, loc, opts, logger)
	default:
		return newGCSPublisher(ctx, loc, opts, logger)
	}
}

// File uploads the file at path to uri.
func File(ctx context.Context, path, uri string, opts Options, logger *zap.Logger) (Location, error) {
	p, err := New(ctx, uri, opts, logger)
	if err != nil {
		return Location{}, err
	}
	defer p.Close()

	f, err := os.Open(path)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open bundle for upload")
	}
	defer f.Close()

	if err := p.Upload(ctx, f); err != nil {
		return Location{}, err
	}
	return p.Location(), nil
}
