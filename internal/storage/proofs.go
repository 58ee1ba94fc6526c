package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/paasforest/proconnect-access/pkg/logging"
)

const defaultProofTTL = 15 * time.Minute

var allowedProofTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
}

// ErrUnsupportedContentType is returned for proof files that are not PDF or images.
var ErrUnsupportedContentType = errors.New("storage: unsupported proof content type")

// PresignAPI is the subset of the S3 presign client used by ProofStore.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ProofStore hands out presigned PUT URLs for proof-of-payment uploads.
type ProofStore struct {
	bucket  string
	presign PresignAPI
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// NewProofStore returns nil when bucket or client is missing so callers can
// leave uploads disabled.
func NewProofStore(client *s3.Client, bucket string, logger *logging.Logger) *ProofStore {
	if client == nil || strings.TrimSpace(bucket) == "" {
		return nil
	}
	return newProofStore(s3.NewPresignClient(client), bucket, logger)
}

func newProofStore(presign PresignAPI, bucket string, logger *logging.Logger) *ProofStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProofStore{bucket: bucket, presign: presign, ttl: defaultProofTTL, now: time.Now, logger: logger}
}

// WithTTL overrides how long issued URLs stay valid.
func (p *ProofStore) WithTTL(ttl time.Duration) *ProofStore {
	if ttl > 0 {
		p.ttl = ttl
	}
	return p
}

func (p *ProofStore) PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := allowedProofTypes[contentType]; !ok {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	issued := p.now().UTC()
	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: presign %s: %w", key, err)
	}
	p.logger.Info("proof upload url issued", "s3_key", key, "content_type", contentType)
	return req.URL, issued.Add(p.ttl), nil
}
