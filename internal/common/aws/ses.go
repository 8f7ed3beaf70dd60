package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// NewSESClient returns an SES client, honouring Options.Endpoint.
func NewSESClient(cfg aws.Config, opts Options) *ses.Client {
	return ses.NewFromConfig(cfg, func(o *ses.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
}
