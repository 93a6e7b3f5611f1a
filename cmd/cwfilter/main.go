package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slices"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/output"
)

var version = "custom-build"

const (
	defaultRegion    = "eu-west-1"
	defaultLogFormat = logging.FormatLogfmt
)

var (
	region       string
	stsRegion    string
	profile      string
	debug        bool
	logFormat    string
	fips         bool
	awsSdkV1     bool
	outputFormat string
	textfilePath string
	timeout      time.Duration

	logger logging.Logger
)

func main() {
	app := NewCwfilterApp()
	if err := app.Run(os.Args); err != nil {
		// the logger is not set up yet when flag parsing fails
		if logger == nil {
			logger = logging.NewLogger(defaultLogFormat, debug)
		}
		logger.Error(err, "Error running cwfilter")
		os.Exit(1)
	}
}

// NewCwfilterApp creates a new cli.App implementing the cwfilter entrypoints and CLI arguments.
func NewCwfilterApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cloudwatch-metrics-filter"
	app.Version = version
	app.Usage = "List AWS CloudWatch metrics filtered by namespace and query their data"
	app.Description = ""
	app.Authors = []*cli.Author{}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "region",
			Aliases:     []string{"r"},
			Value:       defaultRegion,
			Usage:       "AWS region to query.",
			EnvVars:     []string{"AWS_REGION"},
			Destination: &region,
		},
		&cli.StringFlag{
			Name:        "sts-region",
			Value:       "",
			Usage:       "Region used for STS calls. Defaults to the queried region.",
			Destination: &stsRegion,
		},
		&cli.StringFlag{
			Name:        "profile",
			Value:       "",
			Usage:       "Named profile from the shared AWS config files.",
			EnvVars:     []string{"AWS_PROFILE"},
			Destination: &profile,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Value:       false,
			Usage:       "Verbose logging",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "log.format",
			Value:       defaultLogFormat,
			Usage:       "Output format of log messages. One of: [logfmt, json]. Default: [logfmt].",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "fips",
			Value:       false,
			Usage:       "Use FIPS compliant AWS API endpoints.",
			Destination: &fips,
		},
		&cli.BoolFlag{
			Name:        "aws-sdk-v1",
			Value:       false,
			Usage:       "Use aws sdk v1 instead of aws sdk v2.",
			Destination: &awsSdkV1,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Value:       output.FormatJSON,
			Usage:       "Format of the results written to stdout. One of: [json, yaml].",
			Destination: &outputFormat,
		},
		&cli.StringFlag{
			Name:        "metrics.textfile",
			Value:       "",
			Usage:       "Write the results and API usage counters to this file in the Prometheus text format.",
			Destination: &textfilePath,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       0,
			Usage:       "Abort the command after this duration. 0 means no timeout.",
			Destination: &timeout,
		},
	}

	app.Before = func(_ *cli.Context) error {
		if err := logging.ValidateFormat(logFormat); err != nil {
			return err
		}
		logger = logging.NewLogger(logFormat, debug)

		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		outputFormat = format
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:  "filter",
			Usage: "List every metric whose namespace contains the given text, ignoring case",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Text to look for in metric namespaces. Empty matches every metric."},
				&cli.StringFlag{Name: "metric-name", Usage: "Only list metrics with this exact name."},
				&cli.BoolFlag{Name: "recently-active", Usage: "Only list metrics that received data in the past three hours."},
			},
			Action: filterAction,
		},
		{
			Name:  "list",
			Usage: "List metrics matching the given server side filters",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "namespace", Usage: "Exact namespace of the listed metrics."},
				&cli.StringFlag{Name: "metric-name", Usage: "Exact name of the listed metrics."},
				&cli.StringSliceFlag{Name: "dimension", Usage: "Dimension filter as name or name=value. Can be repeated."},
				&cli.BoolFlag{Name: "recently-active", Usage: "Only list metrics that received data in the past three hours."},
			},
			Action: listAction,
		},
		{
			Name:   "streams",
			Usage:  "List the metric streams of the region",
			Action: streamsAction,
		},
		{
			Name:  "statistics",
			Usage: "Get statistics for a single metric",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "namespace", Required: true},
				&cli.StringFlag{Name: "metric-name", Required: true},
				&cli.StringSliceFlag{Name: "dimension", Usage: "Dimension as name=value. Can be repeated."},
				&cli.Int64Flag{Name: "period", Value: 0, Usage: "Period in seconds. Defaults to 300."},
				&cli.DurationFlag{Name: "lookback", Value: 0, Usage: "How far back to look from now. Defaults to 3h."},
				&cli.StringSliceFlag{Name: "stat", Value: cli.NewStringSlice("Average"), Usage: "Statistic to fetch, standard or percentile. Can be repeated."},
			},
			Action: statisticsAction,
		},
		{
			Name:  "metric-data",
			Usage: "Get metric data for one of the SageMaker presets",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "preset", Required: true, Usage: fmt.Sprintf("One of: %v.", presets)},
				&cli.StringFlag{Name: "endpoint", Usage: "SageMaker endpoint name, for the endpoint presets."},
				&cli.StringFlag{Name: "variant", Usage: "Endpoint variant name. Defaults to AllTraffic."},
				&cli.StringFlag{Name: "host", Usage: "Training job host, for the training preset."},
				&cli.DurationFlag{Name: "lookback", Value: 0, Usage: "How far back to look from now. Defaults to 72h for endpoints and 168h for training jobs."},
			},
			Before: func(c *cli.Context) error {
				if !slices.Contains(presets, c.String("preset")) {
					return fmt.Errorf("unknown preset %q, expected one of %v", c.String("preset"), presets)
				}
				return nil
			},
			Action: metricDataAction,
		},
		{
			Name:   "log-groups",
			Usage:  "List the IncomingLogEvents metric of every log group",
			Action: logGroupsAction,
		},
		{
			Name:  "training-jobs",
			Usage: "List the SageMaker training job metrics",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recently-active", Usage: "Only list metrics that received data in the past three hours."},
			},
			Action: trainingJobsAction,
		},
		{
			Name:  "run",
			Usage: "Run every query of a query file and print the report",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "config.file", Value: "config.yml", Usage: "Path to the query file."},
				&cli.BoolFlag{Name: "verify-config", Usage: "Load and validate the query file, then exit."},
			},
			Action: runAction,
		},
		{
			Name:  "version",
			Usage: "Print the version",
			Action: func(c *cli.Context) error {
				_, err := fmt.Fprintln(c.App.Writer, version)
				return err
			},
		},
	}

	return app
}
