package cloudwatch

import (
	"sort"
	"time"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

const TimeFormat = "2006-01-02T15:04:05.999999-07:00"

// Clock small interface which allows for stubbing the time.Now() function for unit testing
type Clock interface {
	Now() time.Time
}

// TimeClock implementation of Clock interface which delegates to Go's Time package
type TimeClock struct{}

func (tc TimeClock) Now() time.Time {
	return time.Now()
}

// TimeWindow returns the [now - lookback, now] window, in UTC.
func TimeWindow(clock Clock, lookback time.Duration) (time.Time, time.Time) {
	endTime := clock.Now().UTC()
	startTime := endTime.Add(-lookback)
	return startTime, endTime
}

// SplitStatistics separates standard statistics from percentiles, which the
// GetMetricStatistics API expects as ExtendedStatistics.
func SplitStatistics(statistics []string) ([]string, []string) {
	var standard, extended []string
	for _, statistic := range statistics {
		if model.IsPercentile(statistic) {
			extended = append(extended, statistic)
		} else {
			standard = append(standard, statistic)
		}
	}
	return standard, extended
}

// SortDatapoints orders datapoints by ascending timestamp, as GetMetricStatistics
// returns them in no particular order.
func SortDatapoints(datapoints []*model.Datapoint) {
	sort.SliceStable(datapoints, func(i, j int) bool {
		ti, tj := datapoints[i].Timestamp, datapoints[j].Timestamp
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.Before(*tj)
	})
}

// MergeMetricDataResults appends the series of results sharing the same id, in
// arrival order. GetMetricData may spread a single series over several pages.
func MergeMetricDataResults(results []model.MetricDataResult) []model.MetricDataResult {
	merged := make([]model.MetricDataResult, 0, len(results))
	index := make(map[string]int, len(results))
	for _, result := range results {
		if i, ok := index[result.ID]; ok {
			merged[i].Timestamps = append(merged[i].Timestamps, result.Timestamps...)
			merged[i].Values = append(merged[i].Values, result.Values...)
			// the last page carries the final status
			merged[i].StatusCode = result.StatusCode
			continue
		}
		index[result.ID] = len(merged)
		merged = append(merged, result)
	}
	return merged
}
