package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the service clients shared by the API and the stream dispatcher.
// Both binaries build one set at cold start and hand the pieces to the stores.
type Clients struct {
	// DynamoDB backs the orders table (claim, finalize, create) and the
	// idempotency table.
	DynamoDB DynamoDBAPI
	// SQS carries failed-record reports to the failure queue.
	SQS SQSAPI
	// CloudWatch receives the per-batch dispatch counters.
	CloudWatch CloudWatchAPI
}

// NewClients resolves the AWS config from opts and builds every client from it.
func NewClients(ctx context.Context, opts ConfigOptions) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Clients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}, nil
}
