package clients

import (
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account"
	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
)

// Factory is an interface to abstract away all logic required to produce the
// per-region clients which wrap AWS clients
type Factory interface {
	GetCloudwatchClient(region string) cloudwatch_client.Client
	GetAccountClient(region string) account.Client
}

// Options are the settings shared by every client a Factory produces.
type Options struct {
	// StsRegion overrides the region used for STS calls. Empty uses the client region.
	StsRegion string
	// Profile selects a named profile from the shared AWS config files.
	Profile string
	FIPS    bool
}
