package cli

import (
	"github.com/spf13/cobra"

	"covid-parser/internal/service"
	"covid-parser/pkg/extractor"
	"covid-parser/pkg/source"
)

type queryFlags struct {
	location    string
	dataType    string
	dateRange   string
	includeDate bool
}

func (q *queryFlags) bind(cmd *cobra.Command, defaultRange extractor.RangeSpec, withDate bool) {
	f := cmd.Flags()
	f.StringVarP(&q.location, "location", "l", source.NationalCode, "Location code, long name or foreign country slug")
	f.StringVarP(&q.dataType, "data-type", "t", string(source.Cases), "cases, deaths or recoveries")
	f.StringVarP(&q.dateRange, "range", "r", defaultRange.String(), `"days:N" or "all"`)
	if withDate {
		f.BoolVarP(&q.includeDate, "include-date", "d", false, "Pair each value with its date label")
	}
}

// resolve applies a positional location over --location.
func (q *queryFlags) resolve(args []string) (string, extractor.RangeSpec, error) {
	location := q.location
	if len(args) > 0 {
		location = args[0]
	}
	rng, err := extractor.ParseRange(q.dateRange)
	return location, rng, err
}

func newNewCmd(e *env) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "new [location]",
		Short: "Per-day figures, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, rng, err := q.resolve(args)
			if err != nil {
				return err
			}
			p, err := e.printer(cmd)
			if err != nil {
				return err
			}
			app, err := e.App()
			if err != nil {
				return err
			}
			result, err := app.Service.New(cmd.Context(), location, q.dataType, rng, q.includeDate)
			if err != nil {
				return err
			}
			return p.envelope(result)
		},
	}
	q.bind(cmd, service.DefaultNewRange, true)
	return cmd
}

func newTotalCmd(e *env) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "total [location]",
		Short: "Sum of per-day figures over a range",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, rng, err := q.resolve(args)
			if err != nil {
				return err
			}
			p, err := e.printer(cmd)
			if err != nil {
				return err
			}
			app, err := e.App()
			if err != nil {
				return err
			}
			result, err := app.Service.Total(cmd.Context(), location, q.dataType, rng)
			if err != nil {
				return err
			}
			return p.envelope(result)
		},
	}
	q.bind(cmd, service.DefaultTotalRange, false)
	return cmd
}

func newSummaryCmd(e *env) *cobra.Command {
	var dataType string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Latest two days for every Australian location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := e.printer(cmd)
			if err != nil {
				return err
			}
			app, err := e.App()
			if err != nil {
				return err
			}
			rows, err := app.Service.Summary(cmd.Context(), dataType)
			if err != nil {
				return err
			}
			return p.summary(rows)
		},
	}
	cmd.Flags().StringVarP(&dataType, "data-type", "t", string(source.Cases), "cases, deaths or recoveries")
	return cmd
}

// newLocationsCmd needs no App: the registry is static. Cache state lives in
// the serving process and is read from GET /api/v1/cache.
func newLocationsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List supported locations and long-name aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := e.printer(cmd)
			if err != nil {
				return err
			}
			return p.locations(source.NewRegistry())
		},
	}
}
