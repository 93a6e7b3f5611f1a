package model

import (
	"time"

	"github.com/grafana/regexp"
)

const (
	DefaultPeriodSeconds = int32(300)
	DefaultLookback      = 3 * time.Hour

	ScanByTimestampAscending  = "TimestampAscending"
	ScanByTimestampDescending = "TimestampDescending"

	// RecentlyActiveWindow is the only value CloudWatch accepts for the
	// RecentlyActive parameter of ListMetrics.
	RecentlyActiveWindow = "PT3H"
)

type Dimension struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// DimensionFilter narrows a ListMetrics call to metrics carrying the named
// dimension. A nil Value matches any value.
type DimensionFilter struct {
	Name  string
	Value *string
}

type Metric struct {
	// The dimensions for the metric, in the order CloudWatch returned them.
	Dimensions []Dimension `json:"dimensions" yaml:"dimensions"`
	MetricName string      `json:"metricName" yaml:"metricName"`
	Namespace  string      `json:"namespace" yaml:"namespace"`
}

// MetricsPage is a single ListMetrics response. A nil or empty NextToken
// marks the last page.
type MetricsPage struct {
	Metrics   []*Metric
	NextToken *string
}

// HasNextPage tells whether the listing continues after this page.
func (p *MetricsPage) HasNextPage() bool {
	return p.NextToken != nil && *p.NextToken != ""
}

// ListMetricsParams are the server side filters of a ListMetrics call.
// The zero value lists every metric visible to the caller.
type ListMetricsParams struct {
	Namespace      string
	MetricName     string
	Dimensions     []DimensionFilter
	RecentlyActive bool
}

type MetricStream struct {
	Name           string     `json:"name" yaml:"name"`
	Arn            string     `json:"arn" yaml:"arn"`
	State          string     `json:"state" yaml:"state"`
	OutputFormat   string     `json:"outputFormat" yaml:"outputFormat"`
	FirehoseArn    string     `json:"firehoseArn" yaml:"firehoseArn"`
	CreationDate   *time.Time `json:"creationDate,omitempty" yaml:"creationDate,omitempty"`
	LastUpdateDate *time.Time `json:"lastUpdateDate,omitempty" yaml:"lastUpdateDate,omitempty"`
}

type Datapoint struct {
	// The average of the metric values that correspond to the data point.
	Average *float64 `json:"average,omitempty" yaml:"average,omitempty"`

	// The percentile statistic for the data point.
	ExtendedStatistics map[string]*float64 `json:"extendedStatistics,omitempty" yaml:"extendedStatistics,omitempty"`

	// The maximum metric value for the data point.
	Maximum *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`

	// The minimum metric value for the data point.
	Minimum *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`

	// The number of metric values that contributed to the aggregate value of this
	// data point.
	SampleCount *float64 `json:"sampleCount,omitempty" yaml:"sampleCount,omitempty"`

	// The sum of the metric values for the data point.
	Sum *float64 `json:"sum,omitempty" yaml:"sum,omitempty"`

	// The time stamp used for the data point.
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// StatisticsQuery describes a single GetMetricStatistics request.
type StatisticsQuery struct {
	Namespace  string
	MetricName string
	Dimensions []Dimension
	StartTime  time.Time
	EndTime    time.Time
	// Period in seconds.
	Period     int32
	Statistics []string
}

type MetricDataQuery struct {
	ID         string
	Metric     Metric
	Period     int32
	Stat       string
	ReturnData bool
}

// MetricDataRequest describes a single GetMetricData call, which may hold
// several queries sharing the same time window.
type MetricDataRequest struct {
	Queries   []MetricDataQuery
	StartTime time.Time
	EndTime   time.Time
	ScanBy    string
}

// MetricDataResult is the full series returned for one query id, with the
// values of every response page merged in arrival order.
type MetricDataResult struct {
	ID         string      `json:"id" yaml:"id"`
	Label      string      `json:"label" yaml:"label"`
	StatusCode string      `json:"statusCode" yaml:"statusCode"`
	Timestamps []time.Time `json:"timestamps" yaml:"timestamps"`
	Values     []float64   `json:"values" yaml:"values"`
}

var percentile = regexp.MustCompile(`^p(\d{1,2}(\.\d{0,2})?|100)$`)

// IsPercentile tells whether statistic must be requested as an extended
// statistic rather than a standard one.
func IsPercentile(statistic string) bool {
	return percentile.MatchString(statistic)
}

// QueryConfig is the validated, defaulted form of a query file.
type QueryConfig struct {
	Region     string
	Filters    []NamespaceFilter
	Listings   []Listing
	Statistics []StatisticsJob
	MetricData []MetricDataJob
}

type NamespaceFilter struct {
	Namespace string
	// MetricNameRegex is optional; when set only metrics whose name matches
	// are kept.
	MetricNameRegex *regexp.Regexp
}

type Listing struct {
	Name   string
	Params ListMetricsParams
}

type StatisticsJob struct {
	Name       string
	Namespace  string
	MetricName string
	Dimensions []Dimension
	Period     int32
	Lookback   time.Duration
	Statistics []string
}

type MetricDataJob struct {
	Name     string
	Lookback time.Duration
	ScanBy   string
	Queries  []MetricDataQuery
}
