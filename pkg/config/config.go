package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/grafana/regexp"
	prom_model "github.com/prometheus/common/model"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

const APIVersion = "v1alpha1"

var (
	standardStatistics    = []string{"SampleCount", "Average", "Sum", "Minimum", "Maximum"}
	highResolutionPeriods = []int32{1, 5, 10, 30}
	metricDataQueryID     = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)
)

type QueryFile struct {
	APIVersion string        `yaml:"apiVersion"`
	Region     string        `yaml:"region"`
	Filters    []*Filter     `yaml:"filters"`
	Listings   []*Listing    `yaml:"listings"`
	Statistics []*Statistics `yaml:"statistics"`
	MetricData []*MetricData `yaml:"metricData"`
}

type Filter struct {
	Namespace       string `yaml:"namespace"`
	MetricNameRegex string `yaml:"metricNameRegex"`
}

type Listing struct {
	Name           string            `yaml:"name"`
	Namespace      string            `yaml:"namespace"`
	MetricName     string            `yaml:"metricName"`
	Dimensions     []DimensionFilter `yaml:"dimensions"`
	RecentlyActive bool              `yaml:"recentlyActive"`
}

type DimensionFilter struct {
	Name  string  `yaml:"name"`
	Value *string `yaml:"value"`
}

type Dimension struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type Statistics struct {
	Name       string              `yaml:"name"`
	Namespace  string              `yaml:"namespace"`
	MetricName string              `yaml:"metricName"`
	Dimensions []Dimension         `yaml:"dimensions"`
	Period     int32               `yaml:"period"`
	Lookback   prom_model.Duration `yaml:"lookback"`
	Statistics []string            `yaml:"statistics"`
}

type MetricData struct {
	Name     string              `yaml:"name"`
	Lookback prom_model.Duration `yaml:"lookback"`
	ScanBy   string              `yaml:"scanBy"`
	Queries  []*MetricDataQuery  `yaml:"queries"`
}

type MetricDataQuery struct {
	ID         string      `yaml:"id"`
	Namespace  string      `yaml:"namespace"`
	MetricName string      `yaml:"metricName"`
	Dimensions []Dimension `yaml:"dimensions"`
	Period     int32       `yaml:"period"`
	Stat       string      `yaml:"stat"`
	ReturnData *bool       `yaml:"returnData"`
}

func (c *QueryFile) Load(file string, logger logging.Logger) (model.QueryConfig, error) {
	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return model.QueryConfig{}, err
	}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return model.QueryConfig{}, err
	}

	logConfigErrors(yamlFile, logger)

	return c.Validate()
}

// Validate fills in defaults and checks every section. The first problem found
// is returned, naming the section and index it was found at.
func (c *QueryFile) Validate() (model.QueryConfig, error) {
	if c.APIVersion != "" && c.APIVersion != APIVersion {
		return model.QueryConfig{}, fmt.Errorf("unknown apiVersion value '%s'", c.APIVersion)
	}
	if c.Region == "" {
		return model.QueryConfig{}, errors.New("Region should not be empty")
	}
	if len(c.Filters) == 0 && len(c.Listings) == 0 && len(c.Statistics) == 0 && len(c.MetricData) == 0 {
		return model.QueryConfig{}, errors.New("At least 1 filter, listing, statistics or metricData query must be defined")
	}

	for idx, filter := range c.Filters {
		if err := filter.validateFilter(idx); err != nil {
			return model.QueryConfig{}, err
		}
	}

	names := map[string]struct{}{}
	for idx, listing := range c.Listings {
		if err := listing.validateListing(idx, names); err != nil {
			return model.QueryConfig{}, err
		}
	}

	names = map[string]struct{}{}
	for idx, statistics := range c.Statistics {
		if err := statistics.validateStatistics(idx, names); err != nil {
			return model.QueryConfig{}, err
		}
	}

	names = map[string]struct{}{}
	for idx, metricData := range c.MetricData {
		if err := metricData.validateMetricData(idx, names); err != nil {
			return model.QueryConfig{}, err
		}
	}

	return c.toModelConfig(), nil
}

func (f *Filter) validateFilter(filterIdx int) error {
	if f.MetricNameRegex == "" {
		return nil
	}
	if _, err := regexp.Compile(f.MetricNameRegex); err != nil {
		return fmt.Errorf("Filter [%s/%d]: metricNameRegex has invalid regex value %s: %w", f.Namespace, filterIdx, f.MetricNameRegex, err)
	}
	return nil
}

func checkName(section string, name string, idx int, seen map[string]struct{}) error {
	if name == "" {
		return fmt.Errorf("%s [%d]: Name should not be empty", section, idx)
	}
	if _, ok := seen[name]; ok {
		return fmt.Errorf("%s [%s/%d]: Name is already used by another %s", section, name, idx, section)
	}
	seen[name] = struct{}{}
	return nil
}

func (l *Listing) validateListing(listingIdx int, seen map[string]struct{}) error {
	if err := checkName("Listing", l.Name, listingIdx, seen); err != nil {
		return err
	}
	for dimIdx, dim := range l.Dimensions {
		if dim.Name == "" {
			return fmt.Errorf("Dimension [%d] in Listing [%s/%d]: Name should not be empty", dimIdx, l.Name, listingIdx)
		}
	}
	return nil
}

// validatePeriod applies the CloudWatch period rules: any multiple of 60, or
// one of the high resolution periods.
func validatePeriod(period int32) error {
	if period < 1 {
		return errors.New("Period value should be a positive integer")
	}
	if period%60 != 0 && !slices.Contains(highResolutionPeriods, period) {
		return fmt.Errorf("Period value %d should be 1, 5, 10, 30 or a multiple of 60", period)
	}
	return nil
}

func validateDimensions(dimensions []Dimension, parent string) error {
	for dimIdx, dim := range dimensions {
		if dim.Name == "" {
			return fmt.Errorf("Dimension [%d] in %s: Name should not be empty", dimIdx, parent)
		}
		if dim.Value == "" {
			return fmt.Errorf("Dimension [%s/%d] in %s: Value should not be empty", dim.Name, dimIdx, parent)
		}
	}
	return nil
}

func (s *Statistics) validateStatistics(statisticsIdx int, seen map[string]struct{}) error {
	if err := checkName("Statistics", s.Name, statisticsIdx, seen); err != nil {
		return err
	}
	parent := fmt.Sprintf("Statistics [%s/%d]", s.Name, statisticsIdx)
	if s.Namespace == "" {
		return fmt.Errorf("%s: Namespace should not be empty", parent)
	}
	if s.MetricName == "" {
		return fmt.Errorf("%s: MetricName should not be empty", parent)
	}
	if err := validateDimensions(s.Dimensions, parent); err != nil {
		return err
	}

	if s.Period == 0 {
		s.Period = model.DefaultPeriodSeconds
	}
	if err := validatePeriod(s.Period); err != nil {
		return fmt.Errorf("%s: %w", parent, err)
	}
	if s.Lookback == 0 {
		s.Lookback = prom_model.Duration(model.DefaultLookback)
	}
	if time.Duration(s.Lookback) < time.Duration(s.Period)*time.Second {
		return fmt.Errorf("%s: lookback(%s) is smaller than period(%d)", parent, s.Lookback, s.Period)
	}

	if len(s.Statistics) == 0 {
		return fmt.Errorf("%s: Statistics should not be empty", parent)
	}
	for _, statistic := range s.Statistics {
		if !slices.Contains(standardStatistics, statistic) && !model.IsPercentile(statistic) {
			return fmt.Errorf("%s: unknown statistic %q", parent, statistic)
		}
	}
	return nil
}

func (m *MetricData) validateMetricData(metricDataIdx int, seen map[string]struct{}) error {
	if err := checkName("MetricData", m.Name, metricDataIdx, seen); err != nil {
		return err
	}
	parent := fmt.Sprintf("MetricData [%s/%d]", m.Name, metricDataIdx)

	if m.ScanBy == "" {
		m.ScanBy = model.ScanByTimestampAscending
	}
	if m.ScanBy != model.ScanByTimestampAscending && m.ScanBy != model.ScanByTimestampDescending {
		return fmt.Errorf("%s: unknown scanBy value '%s'", parent, m.ScanBy)
	}
	if m.Lookback == 0 {
		m.Lookback = prom_model.Duration(model.DefaultLookback)
	}
	if len(m.Queries) == 0 {
		return fmt.Errorf("%s: Queries should not be empty", parent)
	}

	ids := map[string]struct{}{}
	for queryIdx, query := range m.Queries {
		if err := query.validateQuery(queryIdx, parent, ids); err != nil {
			return err
		}
		if time.Duration(m.Lookback) < time.Duration(query.Period)*time.Second {
			return fmt.Errorf("%s: lookback(%s) is smaller than period(%d) of query %s", parent, m.Lookback, query.Period, query.ID)
		}
	}
	return nil
}

func (q *MetricDataQuery) validateQuery(queryIdx int, parent string, seen map[string]struct{}) error {
	if q.ID == "" {
		return fmt.Errorf("Query [%d] in %s: ID should not be empty", queryIdx, parent)
	}
	if !metricDataQueryID.MatchString(q.ID) {
		return fmt.Errorf("Query [%s/%d] in %s: ID must start with a lowercase letter and contain only letters, numbers and underscores", q.ID, queryIdx, parent)
	}
	if _, ok := seen[q.ID]; ok {
		return fmt.Errorf("Query [%s/%d] in %s: ID is already used by another query", q.ID, queryIdx, parent)
	}
	seen[q.ID] = struct{}{}

	queryParent := fmt.Sprintf("Query [%s/%d] in %s", q.ID, queryIdx, parent)
	if q.Namespace == "" {
		return fmt.Errorf("%s: Namespace should not be empty", queryParent)
	}
	if q.MetricName == "" {
		return fmt.Errorf("%s: MetricName should not be empty", queryParent)
	}
	if q.Stat == "" {
		return fmt.Errorf("%s: Stat should not be empty", queryParent)
	}
	if err := validateDimensions(q.Dimensions, queryParent); err != nil {
		return err
	}

	if q.Period == 0 {
		q.Period = model.DefaultPeriodSeconds
	}
	if err := validatePeriod(q.Period); err != nil {
		return fmt.Errorf("%s: %w", queryParent, err)
	}
	if q.ReturnData == nil {
		returnData := true
		q.ReturnData = &returnData
	}
	return nil
}

func (c *QueryFile) toModelConfig() model.QueryConfig {
	cfg := model.QueryConfig{Region: c.Region}

	for _, filter := range c.Filters {
		f := model.NamespaceFilter{Namespace: filter.Namespace}
		if filter.MetricNameRegex != "" {
			// This should never panic as long as regex validation continues to happen before model mapping
			f.MetricNameRegex = regexp.MustCompile(filter.MetricNameRegex)
		}
		cfg.Filters = append(cfg.Filters, f)
	}

	for _, listing := range c.Listings {
		cfg.Listings = append(cfg.Listings, model.Listing{
			Name: listing.Name,
			Params: model.ListMetricsParams{
				Namespace:      listing.Namespace,
				MetricName:     listing.MetricName,
				Dimensions:     toModelDimensionFilters(listing.Dimensions),
				RecentlyActive: listing.RecentlyActive,
			},
		})
	}

	for _, statistics := range c.Statistics {
		cfg.Statistics = append(cfg.Statistics, model.StatisticsJob{
			Name:       statistics.Name,
			Namespace:  statistics.Namespace,
			MetricName: statistics.MetricName,
			Dimensions: toModelDimensions(statistics.Dimensions),
			Period:     statistics.Period,
			Lookback:   time.Duration(statistics.Lookback),
			Statistics: statistics.Statistics,
		})
	}

	for _, metricData := range c.MetricData {
		job := model.MetricDataJob{
			Name:     metricData.Name,
			Lookback: time.Duration(metricData.Lookback),
			ScanBy:   metricData.ScanBy,
		}
		for _, query := range metricData.Queries {
			job.Queries = append(job.Queries, model.MetricDataQuery{
				ID: query.ID,
				Metric: model.Metric{
					Namespace:  query.Namespace,
					MetricName: query.MetricName,
					Dimensions: toModelDimensions(query.Dimensions),
				},
				Period:     query.Period,
				Stat:       query.Stat,
				ReturnData: *query.ReturnData,
			})
		}
		cfg.MetricData = append(cfg.MetricData, job)
	}

	return cfg
}

func toModelDimensions(dimensions []Dimension) []model.Dimension {
	ret := make([]model.Dimension, 0, len(dimensions))
	for _, d := range dimensions {
		ret = append(ret, model.Dimension{
			Name:  d.Name,
			Value: d.Value,
		})
	}
	return ret
}

func toModelDimensionFilters(dimensions []DimensionFilter) []model.DimensionFilter {
	if len(dimensions) == 0 {
		return nil
	}
	ret := make([]model.DimensionFilter, 0, len(dimensions))
	for _, d := range dimensions {
		ret = append(ret, model.DimensionFilter{
			Name:  d.Name,
			Value: d.Value,
		})
	}
	return ret
}

// logConfigErrors logs as warning any config unmarshalling error.
func logConfigErrors(cfg []byte, logger logging.Logger) {
	var qf QueryFile
	var errMsgs []string
	if err := yaml.UnmarshalStrict(cfg, &qf); err != nil {
		terr := &yaml.TypeError{}
		if errors.As(err, &terr) {
			errMsgs = append(errMsgs, terr.Errors...)
		} else {
			errMsgs = append(errMsgs, err.Error())
		}
	}

	if qf.APIVersion == "" {
		errMsgs = append(errMsgs, "missing apiVersion")
	}

	if len(errMsgs) > 0 {
		for _, msg := range errMsgs {
			logger.Warn("config file syntax error", "err", msg)
		}
		logger.Warn(`Config file error(s) detected: cwfilter might not work as expected. Future versions might fail to run with an invalid config file.`)
	}
}
