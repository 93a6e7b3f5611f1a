package v2

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	aws_logging "github.com/aws/smithy-go/logging"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account"
	account_v2 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account/v2"
	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	cloudwatch_v2 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch/v2"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
)

type awsRegion = string

type CachingFactory struct {
	logger              logging.Logger
	awsConfig           aws.Config
	stsOptions          func(*sts.Options)
	clients             map[awsRegion]*cachedClients
	mu                  sync.Mutex
	fipsEnabled         bool
	endpointURLOverride string
}

type cachedClients struct {
	awsConfig  *aws.Config
	cloudwatch cloudwatch_client.Client
	account    account.Client
}

// Ensure the struct properly implements the interface
var _ clients.Factory = &CachingFactory{}

// NewFactory creates a new client factory to use when fetching data from AWS with sdk v2.
// Clients never retry: a failed request is returned to the caller as is.
func NewFactory(logger logging.Logger, opts clients.Options) (*CachingFactory, error) {
	var options []func(*aws_config.LoadOptions) error
	options = append(options, aws_config.WithLogger(aws_logging.LoggerFunc(func(classification aws_logging.Classification, format string, v ...interface{}) {
		if classification == aws_logging.Debug {
			if logger.IsDebugEnabled() {
				logger.Debug(fmt.Sprintf(format, v...))
			}
		} else if classification == aws_logging.Warn {
			logger.Warn(fmt.Sprintf(format, v...))
		} else { // AWS logging only supports debug or warn, log everything else as error
			logger.Error(fmt.Errorf("unexected aws error classification: %s", classification), fmt.Sprintf(format, v...))
		}
	})))

	options = append(options, aws_config.WithLogConfigurationWarnings(true))
	options = append(options, aws_config.WithRetryer(func() aws.Retryer {
		return aws.NopRetryer{}
	}))
	if opts.Profile != "" {
		options = append(options, aws_config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.FIPS {
		options = append(options, aws_config.WithUseFIPSEndpoint(aws.FIPSEndpointStateEnabled))
	}

	endpointURLOverride := os.Getenv("AWS_ENDPOINT_URL")

	c, err := aws_config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load default aws config: %w", err)
	}

	return &CachingFactory{
		logger:              logger,
		awsConfig:           c,
		clients:             map[awsRegion]*cachedClients{},
		fipsEnabled:         opts.FIPS,
		stsOptions:          createStsOptions(opts.StsRegion, logger.IsDebugEnabled(), endpointURLOverride, opts.FIPS),
		endpointURLOverride: endpointURLOverride,
	}, nil
}

// regionalClients returns the cache entry for region, creating it on first use.
// Callers must hold c.mu.
func (c *CachingFactory) regionalClients(region awsRegion) *cachedClients {
	if cache, ok := c.clients[region]; ok {
		return cache
	}
	regionalConfig := c.awsConfig.Copy()
	regionalConfig.Region = region
	cache := &cachedClients{awsConfig: &regionalConfig}
	c.clients[region] = cache
	return cache
}

func (c *CachingFactory) GetCloudwatchClient(region string) cloudwatch_client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.regionalClients(region)
	if cache.cloudwatch == nil {
		cache.cloudwatch = cloudwatch_v2.NewClient(c.logger, c.createCloudwatchClient(cache.awsConfig))
	}
	return cache.cloudwatch
}

func (c *CachingFactory) GetAccountClient(region string) account.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.regionalClients(region)
	if cache.account == nil {
		cache.account = account_v2.NewClient(
			c.logger,
			c.createStsClient(cache.awsConfig),
			c.createIAMClient(cache.awsConfig),
		)
	}
	return cache.account
}

func (c *CachingFactory) createCloudwatchClient(regionConfig *aws.Config) *cloudwatch.Client {
	return cloudwatch.NewFromConfig(*regionConfig, c.cloudwatchOptions)
}

func (c *CachingFactory) cloudwatchOptions(options *cloudwatch.Options) {
	if c.logger.IsDebugEnabled() {
		options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
	}
	if c.endpointURLOverride != "" {
		options.BaseEndpoint = aws.String(c.endpointURLOverride)
	}
	if c.fipsEnabled {
		options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
	}
}

func (c *CachingFactory) createStsClient(awsConfig *aws.Config) *sts.Client {
	return sts.NewFromConfig(*awsConfig, c.stsOptions)
}

func (c *CachingFactory) createIAMClient(awsConfig *aws.Config) *iam.Client {
	return iam.NewFromConfig(*awsConfig, c.iamOptions)
}

func (c *CachingFactory) iamOptions(options *iam.Options) {
	if c.logger.IsDebugEnabled() {
		options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
	}
	if c.endpointURLOverride != "" {
		options.BaseEndpoint = aws.String(c.endpointURLOverride)
	}
	if c.fipsEnabled {
		options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
	}
}

func createStsOptions(stsRegion string, isDebugLoggingEnabled bool, endpointURLOverride string, fipsEnabled bool) func(*sts.Options) {
	return func(options *sts.Options) {
		if stsRegion != "" {
			options.Region = stsRegion
		}
		if isDebugLoggingEnabled {
			options.ClientLogMode = aws.LogRequestWithBody | aws.LogResponseWithBody
		}
		if endpointURLOverride != "" {
			options.BaseEndpoint = aws.String(endpointURLOverride)
		}
		if fipsEnabled {
			options.EndpointOptions.UseFIPSEndpoint = aws.FIPSEndpointStateEnabled
		}
	}
}
