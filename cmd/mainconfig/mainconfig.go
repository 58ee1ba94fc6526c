package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/paasforest/proconnect-access/internal/config"
)

// UsesAWS reports whether any AWS-backed feature is configured: the
// notification queue, proof-of-payment uploads or SES email.
func UsesAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	for _, v := range []string{cfg.NotifyQueueURL, cfg.ProofBucket, cfg.SESFromEmail} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// LoadAWSConfig builds the shared SDK config. Static keys win over the
// default chain, and AWS_ENDPOINT_OVERRIDE points every client (SQS, SES,
// S3) at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}
