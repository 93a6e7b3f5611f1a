package filter

import (
	"context"
	"strings"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

// MetricNamespaceFilter lists metrics and keeps those whose namespace
// contains a substring, ignoring case.
type MetricNamespaceFilter struct {
	logger logging.Logger
	lister MetricsLister
}

func NewMetricNamespaceFilter(logger logging.Logger, lister MetricsLister) *MetricNamespaceFilter {
	return &MetricNamespaceFilter{
		logger: logger,
		lister: lister,
	}
}

// Filter walks every page of an unrestricted listing and returns the metrics
// whose namespace contains namespace, in the order they were listed.
// An empty namespace matches every metric. Nil entries in a page are not
// metrics: they are skipped and never returned.
//
// The first listing error aborts the walk and is returned unchanged together
// with a nil slice. When nothing matches the result is empty, not nil.
func (f *MetricNamespaceFilter) Filter(ctx context.Context, namespace string) ([]*model.Metric, error) {
	return f.FilterWithParams(ctx, nil, namespace)
}

// FilterWithParams is Filter over a listing narrowed server side by params.
func (f *MetricNamespaceFilter) FilterWithParams(ctx context.Context, params *model.ListMetricsParams, namespace string) ([]*model.Metric, error) {
	needle := strings.ToLower(namespace)
	result := []*model.Metric{}
	listed := 0

	pages := Pages(f.lister, params)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			f.logger.Debug("ListMetrics page failed, discarding partial result", "namespace", namespace, "page", pages.Fetched()+1, "matched", len(result))
			return nil, err
		}

		for _, metric := range page.Metrics {
			if metric == nil {
				continue
			}
			listed++
			if matchesNamespace(metric, needle) {
				result = append(result, metric)
			}
		}
	}

	f.logger.Debug("Filtered metrics by namespace", "namespace", namespace, "pages", pages.Fetched(), "listed", listed, "matched", len(result))
	return result, nil
}

// matchesNamespace reports whether the metric namespace contains the already
// lower-cased needle.
func matchesNamespace(metric *model.Metric, needle string) bool {
	return strings.Contains(strings.ToLower(metric.Namespace), needle)
}
