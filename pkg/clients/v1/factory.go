package v1

import (
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account"
	account_v1 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account/v1"
	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	cloudwatch_v1 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch/v1"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
)

type CachingFactory struct {
	stsRegion string
	session   *session.Session
	clients   map[string]*cachedClients
	mu        sync.Mutex
	fips      bool
	logger    logging.Logger
}

type cachedClients struct {
	cloudwatch cloudwatch_client.Client
	account    account.Client
}

// Ensure the struct properly implements the interface
var _ clients.Factory = &CachingFactory{}

// NewFactory creates a new client factory to use when fetching data from AWS with sdk v1
func NewFactory(logger logging.Logger, opts clients.Options) (*CachingFactory, error) {
	endpointResolver := endpoints.DefaultResolver().EndpointFor

	endpointURLOverride := os.Getenv("AWS_ENDPOINT_URL")
	if endpointURLOverride != "" {
		// allow override of all endpoints for local testing
		endpointResolver = func(_ string, _ string, _ ...func(*endpoints.Options)) (endpoints.ResolvedEndpoint, error) {
			return endpoints.ResolvedEndpoint{
				URL: endpointURLOverride,
			}, nil
		}
	}

	sess, err := createAWSSession(endpointResolver, opts.Profile, logger.IsDebugEnabled())
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &CachingFactory{
		stsRegion: opts.StsRegion,
		session:   sess,
		clients:   map[string]*cachedClients{},
		fips:      opts.FIPS,
		logger:    logger,
	}, nil
}

func (c *CachingFactory) regionalClients(region string) *cachedClients {
	if cache, ok := c.clients[region]; ok {
		return cache
	}
	cache := &cachedClients{}
	c.clients[region] = cache
	return cache
}

func (c *CachingFactory) GetCloudwatchClient(region string) cloudwatch_client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.regionalClients(region)
	if cache.cloudwatch == nil {
		cache.cloudwatch = cloudwatch_v1.NewClient(
			c.logger,
			createCloudwatchSession(c.session, &region, c.fips, c.logger.IsDebugEnabled()),
		)
	}
	return cache.cloudwatch
}

func (c *CachingFactory) GetAccountClient(region string) account.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.regionalClients(region)
	if cache.account == nil {
		stsRegion := c.stsRegion
		if stsRegion == "" {
			stsRegion = region
		}
		cache.account = account_v1.NewClient(
			c.logger,
			createStsSession(c.session, stsRegion, c.fips, c.logger.IsDebugEnabled()),
			createIAMSession(c.session, region, c.fips, c.logger.IsDebugEnabled()),
		)
	}
	return cache.account
}

func createAWSSession(resolver endpoints.ResolverFunc, profile string, isDebugEnabled bool) (*session.Session, error) {
	config := aws.Config{
		CredentialsChainVerboseErrors: aws.Bool(true),
		EndpointResolver:              resolver,
		MaxRetries:                    aws.Int(0),
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Profile:           profile,
		Config:            config,
	})
}

func createStsSession(sess *session.Session, region string, fips bool, isDebugEnabled bool) *sts.STS {
	config := &aws.Config{MaxRetries: aws.Int(0)}

	if region != "" {
		config = config.WithRegion(region).WithSTSRegionalEndpoint(endpoints.RegionalSTSEndpoint)
	}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return sts.New(sess, config)
}

// IAM is not regionalized, any region of the partition resolves to the global endpoint.
func createIAMSession(sess *session.Session, region string, fips bool, isDebugEnabled bool) *iam.IAM {
	config := &aws.Config{Region: aws.String(region), MaxRetries: aws.Int(0)}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return iam.New(sess, config)
}

func createCloudwatchSession(sess *session.Session, region *string, fips bool, isDebugEnabled bool) *cloudwatch.CloudWatch {
	config := &aws.Config{Region: region, MaxRetries: aws.Int(0)}

	if fips {
		config.UseFIPSEndpoint = endpoints.FIPSEndpointStateEnabled
	}

	if isDebugEnabled {
		config.LogLevel = aws.LogLevel(aws.LogDebugWithHTTPBody)
	}

	return cloudwatch.New(sess, config)
}
