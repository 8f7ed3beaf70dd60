// Package aws builds AWS SDK clients from shared configuration.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Options selects the region and, for local stacks, an endpoint override.
type Options struct {
	Region   string
	Endpoint string
}

// LoadConfig resolves credentials through the default provider chain.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// NewSNSClient returns an SNS client, honouring Options.Endpoint.
func NewSNSClient(cfg aws.Config, opts Options) *sns.Client {
	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
}
