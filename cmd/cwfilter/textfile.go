package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/promutil"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/runner"
)

// exportTextfile logs the API usage of the command and, when --metrics.textfile
// is set, writes it to the file along with the values found in report.
func exportTextfile(report *runner.Report) error {
	if textfilePath == "" && !logger.IsDebugEnabled() {
		return nil
	}

	registry, err := newRegistry(report)
	if err != nil {
		return err
	}

	if logger.IsDebugEnabled() {
		counts, err := promutil.Summarize(registry)
		if err != nil {
			logger.Warn("Could not summarize API usage", "err", err)
		}
		for _, count := range counts {
			logger.Debug("API usage", "metric", count.Metric, "api_name", count.API, "count", count.Count)
		}
	}

	if textfilePath == "" {
		return nil
	}
	if err := promutil.WriteTextfile(registry, textfilePath); err != nil {
		return err
	}
	logger.Info("Metrics written", "path", textfilePath)
	return nil
}

func newRegistry(report *runner.Report) (*prometheus.Registry, error) {
	registry, err := promutil.NewRegistry()
	if err != nil {
		return nil, err
	}
	if report == nil {
		return registry, nil
	}

	metrics, err := report.PrometheusMetrics(logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(promutil.NewPrometheusCollector(metrics)); err != nil {
		logger.Warn("Could not register cloudwatch metrics", "err", err)
	}
	return registry, nil
}
