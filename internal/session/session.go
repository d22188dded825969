// Package session composes the download engine into a full version
// install: prerequisite metadata first, then every library and asset.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mcfetch/internal/config"
	"mcfetch/internal/downloader"
	"mcfetch/internal/logging"
	"mcfetch/internal/progress"
)

var (
	// ErrInitialFiles wraps any failure of the prerequisite phase. The
	// session aborts before computing the full job list.
	ErrInitialFiles = errors.New("initial files failed")

	// ErrNotInstalled is returned by Verify when no version metadata is on disk.
	ErrNotInstalled = errors.New("version not installed")
)

// Options configures a Session.
type Options struct {
	Config  config.Config
	Source  downloader.Source
	Tracker *progress.Tracker
	Logger  *slog.Logger

	// OS overrides the launcher OS name used for library rules.
	OS string
}

// Session installs and verifies versions below one game root.
type Session struct {
	cfg     config.Config
	layout  Layout
	source  downloader.Source
	fetcher *downloader.Fetcher
	checker *downloader.Checker
	tracker *progress.Tracker
	logger  *slog.Logger
	os      string
}

// New validates opts.Config and wires the engine.
func New(opts Options) (*Session, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, errors.New("session: source is required")
	}
	logger := logging.Or(opts.Logger)
	tracker := opts.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	goos := opts.OS
	if goos == "" {
		goos = CurrentOS()
	}

	cfg := opts.Config
	fetcher := downloader.NewFetcher(opts.Source, downloader.Options{
		Attempts:         cfg.Attempts,
		Backoff:          cfg.Backoff,
		MaxBackoff:       cfg.MaxBackoff,
		VerifyAfterWrite: cfg.VerifyAfterWrite,
	}, logger)

	return &Session{
		cfg:     cfg,
		layout:  Layout{Root: cfg.Root},
		source:  opts.Source,
		fetcher: fetcher,
		checker: downloader.NewChecker(logger),
		tracker: tracker,
		logger:  logger,
		os:      goos,
	}, nil
}

// Tracker returns the progress handle observers should read.
func (s *Session) Tracker() *progress.Tracker {
	return s.tracker
}

// Layout returns the on-disk layout of the session root.
func (s *Session) Layout() Layout {
	return s.layout
}

// Versions lists the manifest entries permitted by the configuration.
func (s *Session) Versions(ctx context.Context) ([]Version, error) {
	m, err := FetchManifest(ctx, s.source, s.cfg.ManifestURL)
	if err != nil {
		return nil, err
	}
	return m.Filter(Allow{
		Snapshot: s.cfg.AllowSnapshot,
		Beta:     s.cfg.AllowBeta,
		Alpha:    s.cfg.AllowAlpha,
	}), nil
}

// Resolve looks id up in the manifest; "latest" and "latest-snapshot" are
// accepted.
func (s *Session) Resolve(ctx context.Context, id string) (Version, error) {
	m, err := FetchManifest(ctx, s.source, s.cfg.ManifestURL)
	if err != nil {
		return Version{}, err
	}
	return m.Resolve(id)
}

// IsInstalled reports whether the version metadata for id is on disk.
func (s *Session) IsInstalled(id string) bool {
	_, err := os.Stat(s.layout.VersionJSON(id))
	return err == nil
}

// Install brings version id up to date below the root. Files that already
// match their expected hash are not fetched again.
//
// A failure of the prerequisite files is returned wrapped in
// ErrInitialFiles and nothing else is attempted. Failures among libraries
// and assets are reported in the Outcome; the error is non-nil only when
// every one of them failed.
func (s *Session) Install(ctx context.Context, id string) (downloader.Outcome, error) {
	v, err := s.Resolve(ctx, id)
	if err != nil {
		return downloader.Outcome{}, err
	}

	meta, err := s.downloadInitials(ctx, v)
	if err != nil {
		return downloader.Outcome{}, fmt.Errorf("%w: %s: %w", ErrInitialFiles, v.ID, err)
	}
	idx, err := ReadAssetIndex(s.layout.AssetIndex(meta.AssetIndex.ID))
	if err != nil {
		return downloader.Outcome{}, fmt.Errorf("%w: %s: %w", ErrInitialFiles, v.ID, err)
	}

	jobs := s.batchJobs(meta, idx)

	s.tracker.Reset()
	s.tracker.SetTotals(0, len(jobs))
	logging.LogPhase(s.logger, v.ID, progress.StateDownloading.String(), len(jobs))
	s.tracker.SetState(progress.StateDownloading)

	sched := downloader.NewScheduler(s.fetcher, s.cfg.Concurrency, s.tracker, s.logger)
	out, err := sched.RunAll(ctx, jobs)
	logging.LogPhase(s.logger, v.ID, progress.StateFinished.String(), out.Total)
	return out, err
}

// downloadInitials fetches the version metadata, then the asset index,
// client jar and mappings it names.
func (s *Session) downloadInitials(ctx context.Context, v Version) (*VersionJSON, error) {
	s.tracker.Reset()
	s.tracker.SetTotals(0, 1)
	s.tracker.SetState(progress.StateDownloadingInitials)

	sched := downloader.NewScheduler(s.fetcher, s.cfg.InitialConcurrency, s.tracker, s.logger)

	versionJob := downloader.FileJob{Path: s.layout.VersionJSON(v.ID), URL: v.URL, Hash: v.SHA1}
	logging.LogPhase(s.logger, v.ID, progress.StateDownloadingInitials.String(), 1)
	if err := runPhase(ctx, sched, []downloader.FileJob{versionJob}); err != nil {
		return nil, err
	}

	meta, err := ReadVersionJSON(versionJob.Path)
	if err != nil {
		return nil, err
	}

	rest := s.initialJobs(v.ID, meta)
	s.tracker.SetTotals(1, 1+len(rest))
	logging.LogPhase(s.logger, v.ID, progress.StateDownloadingInitials.String(), len(rest))
	if err := runPhase(ctx, sched, rest); err != nil {
		return nil, err
	}
	return meta, nil
}

func runPhase(ctx context.Context, sched *downloader.Scheduler, jobs []downloader.FileJob) error {
	out, err := sched.RunAll(ctx, jobs)
	if err != nil {
		return err
	}
	if out.Failed > 0 {
		return fmt.Errorf("%d of %d files failed: %w", out.Failed, out.Total, out.Failures[0].Err)
	}
	return nil
}

func (s *Session) initialJobs(id string, meta *VersionJSON) []downloader.FileJob {
	jobs := []downloader.FileJob{
		{Path: s.layout.AssetIndex(meta.AssetIndex.ID), URL: meta.AssetIndex.URL, Hash: meta.AssetIndex.SHA1},
		{Path: s.layout.ClientJar(id), URL: meta.Downloads.Client.URL, Hash: meta.Downloads.Client.SHA1},
	}
	if m := meta.Downloads.ClientMappings; m != nil && m.URL != "" {
		jobs = append(jobs, downloader.FileJob{Path: s.layout.ClientMappings(id), URL: m.URL, Hash: m.SHA1})
	}
	return jobs
}

// batchJobs lists every library and asset object, one job per destination.
func (s *Session) batchJobs(meta *VersionJSON, idx *AssetIndex) []downloader.FileJob {
	seen := make(map[string]struct{})
	var jobs []downloader.FileJob
	add := func(j downloader.FileJob) {
		if _, ok := seen[j.Path]; ok {
			return
		}
		seen[j.Path] = struct{}{}
		jobs = append(jobs, j)
	}

	for _, lib := range meta.Libraries {
		a := lib.Downloads.Artifact
		if a == nil || a.URL == "" || !lib.Allowed(s.os) {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(a.Path)) {
			s.logger.Warn("skipping library with unsafe path", "library", lib.Name, "path", a.Path)
			continue
		}
		add(downloader.FileJob{Path: s.layout.Library(a.Path), URL: a.URL, Hash: a.SHA1})
	}

	names := make([]string, 0, len(idx.Objects))
	for name := range idx.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		obj := idx.Objects[name]
		if !validHash(obj.Hash) {
			s.logger.Warn("skipping asset with malformed hash", "asset", name, "hash", obj.Hash)
			continue
		}
		add(downloader.FileJob{
			Path: s.layout.AssetObject(obj.Hash),
			URL:  AssetURL(s.cfg.AssetsURL, obj.Hash),
			Hash: obj.Hash,
		})
	}
	return jobs
}

func validHash(h string) bool {
	if len(h) != 40 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Verify checks every file of an installed version against its expected
// hash and returns the jobs Install would fetch. It uses neither the
// network nor writes to the tree. A missing asset index is reported as
// pending; its objects cannot be listed until it is present.
func (s *Session) Verify(ctx context.Context, id string) ([]downloader.FileJob, error) {
	start := time.Now()
	meta, err := ReadVersionJSON(s.layout.VersionJSON(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotInstalled, id)
		}
		return nil, err
	}

	jobs := s.initialJobs(id, meta)
	if idx, err := ReadAssetIndex(s.layout.AssetIndex(meta.AssetIndex.ID)); err == nil {
		jobs = append(jobs, s.batchJobs(meta, idx)...)
	} else {
		s.logger.Warn("asset index unreadable, assets not checked", "version", id, "error", err)
	}

	var pending []downloader.FileJob
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return pending, err
		}
		if !s.checker.Matches(j.Path, j.Hash) {
			pending = append(pending, j)
		}
	}
	s.logger.Info("verify finished",
		"event", "verify_finished",
		"version", id,
		"files", len(jobs),
		"pending", len(pending),
		"duration_ms", time.Since(start).Milliseconds())
	return pending, nil
}
