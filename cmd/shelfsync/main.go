package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"shelfsync/internal/config"
	"shelfsync/internal/events"
	"shelfsync/internal/jobs"
	"shelfsync/internal/logging"
	"shelfsync/internal/metrics"
	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/repository"
	"shelfsync/internal/sheets"
	"shelfsync/internal/store"

	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

const usage = `usage: shelfsync <job>

jobs:
  reverse-sync    push worksheet edits to the platform (CAS-guarded)
  forward-sync    apply platform quantity changes to the worksheet
  reconcile       rebuild the available column from platform state
  metadata        refresh SKU/title columns from the platform
  append-missing  append rows for untracked platform items
  export          write an .xlsx snapshot of the worksheet
  history         show recent runs from the audit store
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		if errors.Is(err, jobs.ErrLeaseHeld) {
			log.Printf("run skipped: %v", err)
			return
		}
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(job string) error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	layout, err := loadLayout(cfg, logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg); err != nil {
		return err
	}

	auditStore, err := store.Open(cfg.Audit.Path, logger)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	if job == "history" {
		return printHistory(auditStore)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	state := initRunState(ctx, cfg, logger)

	bus := events.NewEventBus()
	subscribeRowEvents(ctx, bus, auditStore, logger)

	sheetsService, err := sheets.NewService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, layout, logger)
	if err != nil {
		return err
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		return err
	}

	platformClient := platform.NewClient(cfg.Platform, cfg.Sync.SetReason, logger)

	deps := jobs.Deps{
		Cfg:      cfg,
		Rows:     sheetsService,
		Platform: platformClient,
		State:    state,
		Audit:    auditStore,
		Bus:      bus,
		Logger:   *logger,
	}

	runErr := dispatch(ctx, job, deps, logger)

	if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
		logger.Warn().Err(err).Msg("metrics push failed")
	}
	return runErr
}

func dispatch(ctx context.Context, job string, deps jobs.Deps, logger *zerolog.Logger) error {
	switch job {
	case "reverse-sync":
		_, err := jobs.ReverseSync(ctx, deps)
		return err
	case "forward-sync":
		_, err := jobs.ForwardSync(ctx, deps)
		return err
	case "reconcile":
		_, err := jobs.Reconcile(ctx, deps)
		return err
	case "metadata":
		_, err := jobs.RefreshMetadata(ctx, deps)
		return err
	case "append-missing":
		_, err := jobs.AppendMissing(ctx, deps)
		return err
	case "export":
		path, _, err := jobs.Export(ctx, deps)
		if err == nil {
			logger.Info().Str("path", path).Msg("export written")
		}
		return err
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown job: %s", job)
	}
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()
	return cfg, &logger, closer, nil
}

// loadLayout reads the optional column layout override. Absent file means
// the default column assignment for the configured tab.
func loadLayout(cfg *config.Config, logger *zerolog.Logger) (models.Layout, error) {
	layout := models.DefaultLayout(cfg.Sheets.SheetName)

	layoutPath := os.Getenv("LAYOUT_PATH")
	if layoutPath == "" {
		layoutPath = "configs/layout.yaml"
	}

	data, err := os.ReadFile(layoutPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return layout, nil
		}
		return layout, err
	}

	if err := yamlv2.Unmarshal(data, &layout); err != nil {
		logger.Error().Err(err).Msgf("failed to parse %s", layoutPath)
		return layout, err
	}
	if layout.Sheet == "" {
		layout.Sheet = cfg.Sheets.SheetName
	}
	if err := layout.Validate(); err != nil {
		return layout, err
	}
	return layout, nil
}

func prepareDirectories(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(cfg.Export.Path, 0o755)
}

func initRunState(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) repository.RunState {
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis not configured; lease protects against overlap only within this process")
		return repository.NewMemoryRunState()
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Error().Err(err).Msg("Redis unavailable")
	}
	return repository.NewRedisRunState(client)
}

// subscribeRowEvents records every push attempt into the audit store and
// the push counters.
func subscribeRowEvents(ctx context.Context, bus *events.EventBus, auditStore *store.Store, logger *zerolog.Logger) {
	handler := func(ev *events.Event) error {
		var payload events.RowEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		metrics.IncPush(payload.Result, payload.Retried)

		outcome := models.PushOutcome{
			RowIndex: payload.RowIndex,
			ItemID:   payload.ItemID,
			Desired:  payload.Desired,
			Baseline: payload.Baseline,
			Result:   payload.Result,
			Retried:  payload.Retried,
			ErrText:  payload.Error,
		}
		if err := auditStore.RecordPush(ctx, payload.RunID, outcome); err != nil {
			logger.Error().Err(err).Str("item_id", payload.ItemID).Msg("event bus: record push")
		}
		return nil
	}

	bus.Subscribe(events.EventRowPushed, handler)
	bus.Subscribe(events.EventRowPushFailed, handler)
}

func printHistory(auditStore *store.Store) error {
	runs, err := auditStore.RecentRuns(context.Background(), 20)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tJOB\tSCANNED\tCANDIDATES\tOK\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Format(models.TimeFormat), r.Job, r.Scanned, r.Candidates, r.Succeeded, r.Failed, r.Error)
	}
	return w.Flush()
}
