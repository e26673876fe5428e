package publish

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

type gcsPublisher struct {
	loc    Location
	opts   Options
	client *storage.Client
	logger *zap.Logger
}

func newGCSPublisher(ctx context.Context, loc Location, opts Options, logger *zap.Logger) (*gcsPublisher, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.Anonymous {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	return &gcsPublisher{loc: loc, opts: opts, client: client, logger: logger}, nil
}

func (p *gcsPublisher) Upload(ctx context.Context, body io.Reader) error {
	started := time.Now()
	w := p.client.Bucket(p.loc.Bucket).Object(p.loc.Key).NewWriter(ctx)
	w.ContentType = p.opts.ContentType
	w.Metadata = map[string]string{
		"created": time.Now().UTC().Format(time.RFC3339),
	}

	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to GCS").
			WithDetail("uri", p.loc.String())
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize GCS upload").
			WithDetail("uri", p.loc.String())
	}
	p.logger.Info("bundle published",
		zap.Int64("bytes", n),
		zap.Duration("took", time.Since(started)))
	return nil
}

func (p *gcsPublisher) Location() Location { return p.loc }

func (p *gcsPublisher) Close() error { return p.client.Close() }
