// Command airstat browses GIOS stations from the terminal: list the stations
// of a city, the sensors of a station, and a sensor's statistics report with
// an optional PNG chart.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/analysis"
	"github.com/airstat/airstat/internal/app"
	"github.com/airstat/airstat/internal/auth"
	"github.com/airstat/airstat/internal/chart"
	"github.com/airstat/airstat/internal/config"
	"github.com/airstat/airstat/internal/provider/resilience"
)

// Version is set at compile time via ldflags.
var Version = "dev"

// options are the parsed command line flags.
type options struct {
	city       string
	stationID  int
	sensorID   int
	rangeName  string
	from       string
	to         string
	offline    bool
	chartPath  string
	adminToken string
	verbose    bool
}

var errUsage = errors.New("one of -city, -station, -sensor or -admin-token is required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "airstat: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "airstat: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "airstat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("airstat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.city, "city", "", "List the stations of a city")
	fs.IntVar(&opts.stationID, "station", 0, "List the sensors of a station")
	fs.IntVar(&opts.sensorID, "sensor", 0, "Print the statistics report of a sensor")
	fs.StringVar(&opts.rangeName, "range", "day", "Report range: day, week, month, year or custom")
	fs.StringVar(&opts.from, "from", "", "Custom range start (YYYY-MM-DD)")
	fs.StringVar(&opts.to, "to", "", "Custom range end (YYYY-MM-DD)")
	fs.BoolVar(&opts.offline, "offline", false, "Use stored data only")
	fs.StringVar(&opts.chartPath, "chart", "", "Write the sensor chart as PNG to this path")
	fs.StringVar(&opts.adminToken, "admin-token", "", "Mint an admin token for this subject")
	fs.BoolVar(&opts.verbose, "v", false, "Log provider activity to stderr")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.city == "" && opts.stationID == 0 && opts.sensorID == 0 && opts.adminToken == "" {
		fs.Usage()
		return options{}, errUsage
	}
	return opts, nil
}

func run(ctx context.Context, cfg *config.Config, opts options, stdout, stderr io.Writer) error {
	if opts.adminToken != "" {
		return mintToken(cfg, opts.adminToken, stdout)
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	stack, err := app.Build(ctx, cfg, app.Options{
		Logger:   log,
		Registry: resilience.NewRegistry(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close offline store")
		}
	}()

	stationID := opts.stationID
	if opts.city != "" {
		first, err := listStations(ctx, stack.Service, opts, stdout)
		if err != nil {
			return err
		}
		// Offline browsing has nobody to pick a station, so take the first.
		if opts.offline && stationID == 0 && opts.sensorID == 0 {
			stationID = first
		}
	}

	if stationID != 0 {
		if err := listSensors(ctx, stack.Service, stationID, opts.offline, stdout); err != nil {
			return err
		}
	}

	if opts.sensorID != 0 {
		return printReport(ctx, stack.Service, opts, stdout)
	}
	return nil
}

func mintToken(cfg *config.Config, subject string, stdout io.Writer) error {
	jwtService := auth.NewJWTService(cfg.JWTConfig())
	token, expiresAt, err := jwtService.GenerateAccessToken(subject, auth.ScopeCacheRefresh, auth.ScopeStatus)
	if err != nil {
		return fmt.Errorf("mint admin token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stdout, "# expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

// listStations prints the stations of opts.city and returns the first ID.
func listStations(ctx context.Context, svc *airquality.Service, opts options, stdout io.Writer) (int, error) {
	res, err := svc.Stations(ctx, airquality.StationsRequest{City: opts.city, Offline: opts.offline})
	if err != nil {
		return 0, err
	}
	printSource(stdout, res.Source, res.FetchedAt, opts.offline, res.FetchErr)
	if len(res.Stations) == 0 {
		fmt.Fprintf(stdout, "no stations found in %s\n", res.City)
		return 0, nil
	}

	fmt.Fprintf(stdout, "Stations in %s:\n", res.City)
	for _, st := range res.Stations {
		fmt.Fprintf(stdout, "  %-6d %s", st.ID, st.Name)
		if st.Street != "" {
			fmt.Fprintf(stdout, " (%s)", st.Street)
		}
		fmt.Fprintln(stdout)
	}
	return res.Stations[0].ID, nil
}

func listSensors(ctx context.Context, svc *airquality.Service, stationID int, offline bool, stdout io.Writer) error {
	res, err := svc.Sensors(ctx, airquality.SensorsRequest{StationID: stationID, Offline: offline})
	if err != nil {
		return err
	}
	printSource(stdout, res.Source, res.FetchedAt, offline, res.FetchErr)
	if len(res.Sensors) == 0 {
		fmt.Fprintf(stdout, "no sensors at station %d\n", stationID)
		return nil
	}

	fmt.Fprintf(stdout, "Sensors at station %d:\n", stationID)
	for _, s := range res.Sensors {
		fmt.Fprintf(stdout, "  %-6d %-8s %s\n", s.ID, s.ParamCode, s.ParamName)
	}
	return nil
}

func printReport(ctx context.Context, svc *airquality.Service, opts options, stdout io.Writer) error {
	sel, err := analysis.ParseSelection(opts.rangeName, opts.from, opts.to)
	if err != nil {
		return err
	}

	res, err := svc.Measurements(ctx, airquality.SeriesRequest{SensorID: opts.sensorID, Offline: opts.offline})
	if err != nil {
		return err
	}
	printSource(stdout, res.Source, res.FetchedAt, opts.offline, res.FetchErr)

	report := analysis.NewEngine().Compute(res.Series, sel)
	if len(report.Entries) == 0 {
		fmt.Fprintln(stdout, analysis.NoData)
		return nil
	}
	fmt.Fprint(stdout, analysis.Format(report))

	if opts.chartPath == "" {
		return nil
	}
	return writeChart(opts.chartPath, report, stdout)
}

// writeChart leaves path untouched unless the chart renders.
func writeChart(path string, report analysis.Report, stdout io.Writer) error {
	var buf bytes.Buffer
	if err := chart.Render(&buf, chart.ReportOptions(report), report.Points); err != nil {
		if errors.Is(err, chart.ErrNotEnoughPoints) {
			fmt.Fprintln(stdout, "! chart skipped: not enough points to draw a chart")
			return nil
		}
		return fmt.Errorf("render chart: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chart file: %w", err)
	}
	fmt.Fprintf(stdout, "chart written to %s\n", path)
	return nil
}

// printSource prints the same data source notices the API reports as
// warnings.
func printSource(w io.Writer, source airquality.Source, fetchedAt time.Time, offline bool, fetchErr error) {
	stamp := ""
	if !fetchedAt.IsZero() {
		stamp = " from " + fetchedAt.Local().Format("2006-01-02 15:04")
	}
	switch {
	case source == airquality.SourceNone:
		fmt.Fprintln(w, "! no data available online or offline")
	case source != airquality.SourceOffline:
	case offline:
		fmt.Fprintln(w, "! offline mode: showing stored data"+stamp)
	case fetchErr != nil:
		fmt.Fprintln(w, "! network unavailable: showing stored data"+stamp+" ("+strings.TrimSpace(fetchErr.Error())+")")
	default:
		fmt.Fprintln(w, "! showing stored data"+stamp)
	}
}
