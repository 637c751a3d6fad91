package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openaire-nl/nl-stats/config"
	"github.com/openaire-nl/nl-stats/internal/institutions"
	"github.com/openaire-nl/nl-stats/internal/openaire"
	"github.com/openaire-nl/nl-stats/internal/pipeline"
	"github.com/openaire-nl/nl-stats/internal/report"
	"github.com/openaire-nl/nl-stats/model"
	"go.uber.org/zap"
)

// ErrStoreUnavailable is returned when a run asks to be stored but the
// service has no store.
var ErrStoreUnavailable = errors.New("coverage store not configured")

// RunService executes complete coverage runs: token, institutions, pipeline,
// report and optionally storage. The CLI and the Kafka worker share it.
type RunService struct {
	Config     *config.Config
	Store      CoverageStore
	Logger     *zap.Logger
	HTTPClient *http.Client
	Sink       pipeline.EventSink // receives pipeline events besides the log
	Now        func() time.Time
}

func (s *RunService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RunService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// Execute performs one run. A token failure is returned before any
// institution is processed and wraps openaire.ErrAuthentication. When the
// run is cancelled the partial rows are neither written nor stored and the
// aborted run record is returned with the error.
func (s *RunService) Execute(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	logger := s.logger()

	cfg := *s.Config
	if req.DataFile != "" {
		cfg.DataFile = req.DataFile
	}
	if req.OutputDir != "" {
		cfg.OutputDir = req.OutputDir
	}
	if req.Scheme != "" {
		cfg.ColumnScheme = strings.ToLower(req.Scheme)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if req.Store && s.Store == nil {
		return nil, ErrStoreUnavailable
	}

	run := &model.Run{
		Key:       req.ID,
		Status:    model.RunAborted,
		StartedAt: s.now(),
		InputFile: cfg.DataFile,
		Scheme:    cfg.ColumnScheme,
	}
	if run.Key == "" {
		run.Key = uuid.New().String()
	}

	tokens := &openaire.TokenProvider{
		URL:          cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		HTTPClient:   s.HTTPClient,
		Logger:       logger,
	}

	client := openaire.NewClient(openaire.Options{
		BaseURL:        cfg.APIBaseURL,
		Namespace:      cfg.Namespace,
		MaxAttempts:    cfg.MaxAttempts,
		RetryInterval:  cfg.RetryInterval,
		RequestTimeout: cfg.RequestTimeout,
		PageSize:       cfg.PageSize,
		HTTPClient:     s.HTTPClient,
		Logger:         logger,
	})
	if err := client.Authenticate(ctx, tokens); err != nil {
		return nil, err
	}

	columns := institutions.DefaultColumns()
	columns.ID = cfg.IDColumn
	loader := institutions.NewLoader(institutions.Options{Columns: columns, Dedupe: cfg.Dedupe}, logger)

	table, err := loader.LoadFile(cfg.DataFile)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(client,
		pipeline.WithSink(pipeline.Fanout{pipeline.ZapSink{Logger: logger}, s.Sink}),
		pipeline.WithClock(s.Now))

	res, err := p.Run(ctx, table.Institutions)

	run.StartedAt = res.StartedAt
	run.FinishedAt = res.FinishedAt
	run.Status = res.Status()
	run.Summary = res.Summary

	if err != nil {
		logger.Warn("Run aborted, partial results discarded", zap.String("run", run.Key), zap.Int("rows", len(res.Rows)), zap.Error(err))
		return run, err
	}

	writer := &report.Writer{
		Dir:    cfg.OutputDir,
		Suffix: cfg.OutputSuffix,
		Scheme: cfg.ColumnScheme,
		Now:    s.Now,
	}
	if run.OutputFile, err = writer.Write(res.Rows); err != nil {
		return run, err
	}

	if req.Store {
		if err := s.Store.SaveRun(ctx, run, res.Rows); err != nil {
			return run, fmt.Errorf("store run: %w", err)
		}
		logger.Info("Run stored", zap.String("run", run.Key))
	}

	logger.Info("Results saved",
		zap.String("file", run.OutputFile),
		zap.String("status", run.Status),
		zap.Int("rows", run.Rows),
		zap.Int("anomalies", run.Anomalies),
		zap.Int("failed", run.Failed()))

	return run, nil
}
