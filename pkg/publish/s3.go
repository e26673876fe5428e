package publish

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

type s3Publisher struct {
	loc      Location
	opts     Options
	uploader *manager.Uploader
	logger   *zap.Logger
}

func newS3Publisher(ctx context.Context, loc Location, opts Options, logger *zap.Logger) (*s3Publisher, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	region := opts.Region
	if region == "" && opts.Endpoint != "" {
		region = "us-east-1"
	}
	if region != "" {
		loaders = append(loaders, awsconfig.WithRegion(region))
	}
	if opts.Anonymous {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return &s3Publisher{
		loc:  loc,
		opts: opts,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 16 * 1024 * 1024
			u.Concurrency = 4
		}),
		logger: logger,
	}, nil
}

func (p *s3Publisher) Upload(ctx context.Context, body io.Reader) error {
	started := time.Now()
	out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.loc.Bucket),
		Key:         aws.String(p.loc.Key),
		Body:        body,
		ContentType: aws.String(p.opts.ContentType),
		Metadata: map[string]string{
			"created": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
			WithDetail("uri", p.loc.String())
	}
	p.logger.Info("bundle published",
		zap.String("location", out.Location),
		zap.Duration("took", time.Since(started)))
	return nil
}

func (p *s3Publisher) Location() Location { return p.loc }

func (p *s3Publisher) Close() error { return nil }
