package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmBatchLimit is the GetParameters per-call limit.
const ssmBatchLimit = 10

type ssmAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves SecureString parameters from SSM Parameter Store.
type SSMProvider struct {
	region string
	api    ssmAPI
}

// NewSSMProvider returns a provider for region. The SDK client is created on
// first use.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func (p *SSMProvider) client(ctx context.Context) (ssmAPI, error) {
	if p.api != nil {
		return p.api, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.api = ssm.NewFromConfig(cfg)
	return p.api, nil
}

// GetParametersBatch fetches keys with decryption, ten at a time. Any name
// SSM reports as invalid fails the whole call.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	api, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(keys); start += ssmBatchLimit {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("SSM resolution interrupted: %w", err)
		}

		end := min(start+ssmBatchLimit, len(keys))
		resp, err := api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          keys[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters (keys %d-%d of %d): %w", start, end-1, len(keys), err)
		}
		if len(resp.InvalidParameters) > 0 {
			return nil, fmt.Errorf("SSM parameters not found: %v", resp.InvalidParameters)
		}

		for _, param := range resp.Parameters {
			out[aws.ToString(param.Name)] = aws.ToString(param.Value)
		}
	}

	return out, nil
}
