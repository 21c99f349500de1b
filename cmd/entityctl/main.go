// Command entityctl seeds a volatile entity store and runs queries against it.
package main

import (
	"context"
	"encoding/json"
	"entitystore/internal/config"
	"entitystore/internal/core"
	"entitystore/internal/seed"
	"entitystore/pkg/domain"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand once the root pre-run has
// loaded config and seeded the store.
type app struct {
	configPath string
	seed       uint64
	count      int
	page       int
	pageSize   int
	trace      bool

	registry    *prometheus.Registry
	metrics     core.MetricsRecorder
	backend     domain.Backend
	service     *core.Service
	stopTracing func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return (&app{}).rootCmd(stdout, stderr)
}

// rootCmd wires the subcommands. Cobra skips post-run hooks when RunE fails,
// so each subcommand releases the app itself through a.run.
func (a *app) rootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "entityctl",
		Short:        "Query a seeded in-memory entity store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.Uint64Var(&a.seed, "seed", 1, "generator seed")
	flags.IntVar(&a.count, "count", 50, "number of entities to seed")
	flags.IntVar(&a.page, "page", core.DefaultPage, "1-based page number")
	flags.IntVar(&a.pageSize, "page-size", core.DefaultPageSize, "entities per page")
	flags.BoolVar(&a.trace, "trace", false, "write operation spans as JSON lines to stderr when no tracing backend is configured")

	root.AddCommand(a.searchCmd(), a.filterCmd(), a.listCmd(), a.metricsCmd())
	return root
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := cfg.Logger(logOut)
	if err != nil {
		return err
	}
	if b := strings.ToLower(cfg.Tracing.Backend); a.trace && (b == "" || b == config.TracingNone) {
		cfg.Tracing.Backend = config.TracingJSON
	}
	var tracer core.Tracer
	tracer, a.stopTracing = cfg.Tracer(logOut)

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = cfg.MetricsRecorder(a.registry); err != nil {
		return errors.Join(err, a.close())
	}
	a.backend, err = core.OpenBackend(cfg.StorageDriver(), cfg.Storage.SQLiteDSN)
	if err != nil {
		return errors.Join(fmt.Errorf("open backend: %w", err), a.close())
	}
	store := core.NewStore(a.backend,
		core.WithRetryPolicy(cfg.RetryPolicy()),
		core.WithLogger(logger),
		core.WithMetrics(a.metrics),
		core.WithTracer(tracer),
	)
	a.service = core.NewService(store)
	if _, err := a.service.Seed(ctx, seed.New(a.seed), a.count); err != nil {
		return errors.Join(err, a.close())
	}
	return nil
}

// close releases the backend and flushes the tracer. It is safe to call more
// than once.
func (a *app) close() error {
	var errs []error
	if a.backend != nil {
		errs = append(errs, core.CloseBackend(a.backend))
		a.backend = nil
	}
	if a.stopTracing != nil {
		errs = append(errs, a.stopTracing(context.Background()))
		a.stopTracing = nil
	}
	return errors.Join(errs...)
}

// run adapts fn to a RunE that closes the app whether or not fn fails.
func (a *app) run(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return errors.Join(fn(cmd, args), a.close())
	}
}

func (a *app) pageRequest() core.PageRequest {
	return core.PageRequest{Page: a.page, PageSize: a.pageSize}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search TEXT",
		Short: "Case-insensitive substring search over names and addresses",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			}
			page, err := a.service.Search(cmd.Context(), text, a.pageRequest())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		}),
	}
}

func (a *app) filterCmd() *cobra.Command {
	var (
		gender     string
		countries  []string
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter by gender, birth date range and country",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			criteria := core.FilterCriteria{Gender: gender, Countries: countries}
			var err error
			if criteria.StartDate, err = parseDate(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if criteria.EndDate, err = parseDate(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			page, err := a.service.Filter(cmd.Context(), criteria, a.pageRequest())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		}),
	}
	cmd.Flags().StringVar(&gender, "gender", "", "exact gender match")
	cmd.Flags().StringSliceVar(&countries, "country", nil, "address country; repeatable, any may match")
	cmd.Flags().StringVar(&start, "start", "", "earliest date, RFC 3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "latest date, RFC 3339 or YYYY-MM-DD")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities ordered by id, gender or deceased",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			page, err := a.service.ListSorted(cmd.Context(), core.ParseSortKey(sortBy), a.pageRequest())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		}),
	}
	cmd.Flags().StringVar(&sortBy, "sort", string(core.SortByID), "sort key: id, gender or deceased")
	return cmd
}

func (a *app) metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the metrics recorded while seeding",
		Long:  "Prints Prometheus text exposition, or the expvar snapshot as JSON when metrics.backend is expvar.",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if rec, ok := a.metrics.(*core.ExpvarMetricsRecorder); ok {
				return writeJSON(cmd.OutOrStdout(), rec.Snapshot())
			}
			families, err := a.registry.Gather()
			if err != nil {
				return err
			}
			enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("expected RFC 3339 or YYYY-MM-DD, got " + s)
}
