package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// GetSecretValueAPI is the part of the Secrets Manager client used here.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Client reads JSON key/value secrets from AWS Secrets Manager.
type Client struct {
	api GetSecretValueAPI
}

// NewClient builds a client from the default AWS credential chain.
func NewClient(ctx context.Context, region string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewClientWithAPI(secretsmanager.NewFromConfig(cfg)), nil
}

func NewClientWithAPI(api GetSecretValueAPI) *Client {
	return &Client{api: api}
}

// FetchJSON returns the secret's string value decoded as a flat JSON
// object. Non-string values are re-encoded as JSON text.
func (c *Client) FetchJSON(ctx context.Context, secretID string) (map[string]string, error) {
	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return nil, errors.New("secret has no string value")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*out.SecretString), &raw); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", secretID, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			values[k] = s
			continue
		}
		values[k] = string(v)
	}
	return values, nil
}
