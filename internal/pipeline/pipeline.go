// Package pipeline runs one decompile request end to end: it validates the
// project id, resolves a token, downloads the manifest and assets, builds the
// .sb3 archive, runs the decompiler, and zips what it produced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/archive"
	"github.com/JakeFAU/sb2gs-service/internal/metrics"
	"github.com/JakeFAU/sb2gs-service/internal/scratch"
	"github.com/JakeFAU/sb2gs-service/internal/workspace"
)

// Stage names one step of a run. Values double as metric labels.
type Stage string

// Stages in execution order.
const (
	StageValidatingInput   Stage = "validating_input"
	StageResolvingToken    Stage = "resolving_token"
	StageFetchingManifest  Stage = "fetching_manifest"
	StageEnumeratingAssets Stage = "enumerating_assets"
	StageFetchingAssets    Stage = "fetching_assets"
	StageAssemblingInput   Stage = "assembling_input"
	StageDecompiling       Stage = "decompiling"
	StageRepackaging       Stage = "repackaging"
)

// OutcomeSuccess labels a run that produced an archive.
const OutcomeSuccess = "success"

// Upstream is the slice of the Scratch client the pipeline needs.
type Upstream interface {
	ResolveToken(ctx context.Context, id scratch.ProjectID) (scratch.Token, error)
	FetchManifest(ctx context.Context, id scratch.ProjectID, token scratch.Token) ([]byte, error)
	FetchAssets(ctx context.Context, keys iter.Seq[scratch.AssetKey]) (map[scratch.AssetKey][]byte, error)
}

// Workspaces hands out per-run scratch directories.
type Workspaces interface {
	Acquire() (*workspace.Workspace, error)
	AcquireNamed(id string) (*workspace.Workspace, error)
}

// Config controls the decompiler flags passed on every run.
type Config struct {
	Overwrite bool
	Verify    bool
}

// Result is the outcome of a successful run.
type Result struct {
	ProjectID  scratch.ProjectID
	Archive    []byte
	AssetCount int
}

// Orchestrator sequences the stages of a run. It is safe for concurrent use.
type Orchestrator struct {
	upstream   Upstream
	decompiler scratch.Decompiler
	workspaces Workspaces
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(up Upstream, decompiler scratch.Decompiler, workspaces Workspaces, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if up == nil {
		return nil, errors.New("upstream client is required")
	}
	if decompiler == nil {
		return nil, errors.New("decompiler is required")
	}
	if workspaces == nil {
		return nil, errors.New("workspace manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		upstream:   up,
		decompiler: decompiler,
		workspaces: workspaces,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run executes every stage for rawID in order, stopping at the first
// failure. Errors are *scratch.Error values except when ctx ends mid-run.
func (o *Orchestrator) Run(ctx context.Context, rawID string) (res Result, err error) {
	requestID := RequestIDFrom(ctx)
	logger := o.logger.With(zap.String("request_id", requestID), zap.String("project_id", rawID))
	start := time.Now()
	defer func() {
		o.finish(logger, start, res, err)
	}()

	var id scratch.ProjectID
	if err := o.stage(logger, StageValidatingInput, func() (stageErr error) {
		id, stageErr = scratch.ParseProjectID(rawID)
		return stageErr
	}); err != nil {
		return Result{}, err
	}

	var token scratch.Token
	if err := o.stage(logger, StageResolvingToken, func() (stageErr error) {
		token, stageErr = o.upstream.ResolveToken(ctx, id)
		return stageErr
	}); err != nil {
		return Result{}, err
	}

	var rawManifest []byte
	if err := o.stage(logger, StageFetchingManifest, func() (stageErr error) {
		rawManifest, stageErr = o.upstream.FetchManifest(ctx, id, token)
		return stageErr
	}); err != nil {
		return Result{}, err
	}

	// Shape errors (missing targets, unkeyed assets) belong to this stage.
	var manifest scratch.Manifest
	if err := o.stage(logger, StageEnumeratingAssets, func() (stageErr error) {
		manifest, stageErr = scratch.ParseManifest(rawManifest)
		if stageErr != nil {
			return stageErr
		}
		logger.Debug("manifest enumerated",
			zap.Int("targets", manifest.TargetCount()),
			zap.Int("assets", manifest.AssetCount()),
		)
		return nil
	}); err != nil {
		return Result{}, err
	}

	var assets map[scratch.AssetKey][]byte
	if err := o.stage(logger, StageFetchingAssets, func() (stageErr error) {
		assets, stageErr = o.upstream.FetchAssets(ctx, manifest.AssetKeys())
		return stageErr
	}); err != nil {
		return Result{}, err
	}

	ws, err := o.acquire(requestID)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			logger.Warn("workspace cleanup failed", zap.String("dir", ws.Dir), zap.Error(relErr))
		}
	}()
	logger = logger.With(zap.String("workspace", ws.ID))

	if err := o.stage(logger, StageAssemblingInput, func() error {
		return archive.WriteProject(ws.InputArchive, manifest.Raw, assets)
	}); err != nil {
		return Result{}, err
	}

	if err := o.stage(logger, StageDecompiling, func() error {
		return o.decompiler.Decompile(ctx, scratch.DecompileRequest{
			Input:     ws.InputArchive,
			Output:    ws.OutputDir,
			Overwrite: o.cfg.Overwrite,
			Verify:    o.cfg.Verify,
		})
	}); err != nil {
		return Result{}, err
	}

	var body []byte
	if err := o.stage(logger, StageRepackaging, func() error {
		if zipErr := archive.ZipDir(ws.OutputDir, ws.OutputArchive); zipErr != nil {
			return zipErr
		}
		data, readErr := os.ReadFile(ws.OutputArchive)
		if readErr != nil {
			return scratch.NewError(scratch.KindRepackage, "", fmt.Errorf("read output archive: %w", readErr))
		}
		body = data
		return nil
	}); err != nil {
		return Result{}, err
	}

	return Result{ProjectID: id, Archive: body, AssetCount: len(assets)}, nil
}

func (o *Orchestrator) stage(logger *zap.Logger, st Stage, fn func() error) error {
	logger.Debug("stage started", zap.String("stage", string(st)))
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.ObserveStage(string(st), elapsed)
	if err != nil {
		logger.Debug("stage failed",
			zap.String("stage", string(st)),
			zap.String("kind", string(scratch.KindOf(err))),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return err
	}
	logger.Debug("stage finished", zap.String("stage", string(st)), zap.Duration("duration", elapsed))
	return nil
}

// acquire prefers the request id as the directory name so a kept workspace
// can be matched to its access log line.
func (o *Orchestrator) acquire(requestID string) (*workspace.Workspace, error) {
	if requestID != "" {
		if ws, err := o.workspaces.AcquireNamed(requestID); err == nil {
			return ws, nil
		}
	}
	ws, err := o.workspaces.Acquire()
	if err != nil {
		return nil, scratch.NewError(scratch.KindArchiveWrite, "workspace", err)
	}
	return ws, nil
}

func (o *Orchestrator) finish(logger *zap.Logger, start time.Time, res Result, err error) {
	elapsed := time.Since(start)
	if err == nil {
		metrics.ObservePipelineRun(OutcomeSuccess)
		logger.Info("decompile succeeded",
			zap.Int("assets", res.AssetCount),
			zap.Int("archive_bytes", len(res.Archive)),
			zap.Duration("duration", elapsed),
		)
		return
	}
	kind := scratch.KindOf(err)
	metrics.ObservePipelineRun(string(kind))
	logger.Warn("decompile failed",
		zap.String("kind", string(kind)),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
}
