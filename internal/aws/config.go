package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-2"

// ConfigOptions controls how the shared SDK config is loaded.
type ConfigOptions struct {
	Region string
	// Endpoint overrides the service endpoint (e.g. http://localhost:4566 for localstack).
	Endpoint string
}

func LoadAWSConfig(ctx context.Context, opts ConfigOptions) (sdkaws.Config, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
