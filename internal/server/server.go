package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pawbot/internal/config"
	"pawbot/internal/cron"
	"pawbot/internal/gateway"
	"pawbot/internal/gateway/websocket"
	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
)

// Scheduled maintenance jobs.
const (
	JobKnowledgeResync = "knowledge-resync"
	JobKVCleanup       = "kv-cleanup"

	kvCleanupSchedule = "@every 1h"
	watchDebounce     = time.Second
)

// Server runs the gateway together with the knowledge watcher and the
// maintenance scheduler.
type Server struct {
	cfg     *config.Config
	version string
	logger  zerolog.Logger

	comps     *Components
	gateway   *gateway.Server
	scheduler *cron.Scheduler
	watcher   *knowledge.Watcher
	syncer    *lockedSyncer
	ln        net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu            sync.RWMutex
	running       bool
	startedAt     time.Time
	errChan       chan error
	onStateChange func(bool)
}

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	Config  *config.Config
	Version string
	Logger  zerolog.Logger
	// Provider replaces the configured model endpoint, mainly for tests.
	Provider      provider.Provider
	OnStateChange func(bool)
}

// NewServer wires the components. Nothing listens until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server: config is required")
	}
	comps, err := Build(cfg.Config, cfg.Provider)
	if err != nil {
		return nil, err
	}

	syncer := &lockedSyncer{ingester: comps.Ingester}
	hub := websocket.NewHub()
	gw := gateway.NewServer(cfg.Config, cfg.Version, hub, gateway.Deps{
		Assistant: comps.Assistant,
		Resolver:  comps.Resolver,
		Syncer:    syncer,
		IndexSize: comps.Index.Size,
		DocsDir:   comps.DocsDir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:           cfg.Config,
		version:       cfg.Version,
		logger:        cfg.Logger,
		comps:         comps,
		gateway:       gw,
		scheduler:     cron.NewScheduler(cfg.Logger.With().Str("component", "cron").Logger(), nil),
		syncer:        syncer,
		ctx:           ctx,
		cancel:        cancel,
		errChan:       make(chan error, 1),
		onStateChange: cfg.OnStateChange,
	}, nil
}

// ErrorChan returns the error channel for monitoring server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Components returns the wired collaborators.
func (s *Server) Components() *Components {
	return s.comps
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start listens on the gateway address, starts background work and returns.
// Serve errors are reported on ErrorChan.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Gateway.Host, strconv.Itoa(s.cfg.Gateway.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	if err := s.initializeCron(); err != nil {
		ln.Close()
		return err
	}
	s.initializeWatcher()

	group, gctx := errgroup.WithContext(s.ctx)
	group.Go(func() error {
		if err := s.gateway.Serve(ln); err != nil {
			select {
			case s.errChan <- err:
			default:
			}
			return err
		}
		return nil
	})
	// 启动时做一次全量同步
	group.Go(func() error {
		s.resync(gctx)
		return nil
	})

	s.scheduler.Start()

	s.mu.Lock()
	s.ln = ln
	s.group = group
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.onStateChange != nil {
		s.onStateChange(true)
	}

	s.logger.Info().
		Str("address", "http://"+ln.Addr().String()).
		Str("docs_dir", s.comps.DocsDir).
		Msg("pawbot server started")
	return nil
}

// Stop shuts everything down in reverse order and closes storage.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	group := s.group
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := s.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if group != nil {
		if err := group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.comps.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	if s.onStateChange != nil {
		s.onStateChange(false)
	}
	s.logger.Info().Msg("Server stopped")
	return errors.Join(errs...)
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StartedAt returns when Start succeeded.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// NextResync reports when the scheduled knowledge resync runs next.
func (s *Server) NextResync() (time.Time, bool) {
	return s.scheduler.NextRun(JobKnowledgeResync)
}

func (s *Server) initializeCron() error {
	if spec := s.cfg.Knowledge.ResyncSchedule; spec != "" {
		err := s.scheduler.Add(JobKnowledgeResync, spec, 0, func(ctx context.Context) error {
			s.resync(ctx)
			return nil
		})
		if err != nil {
			return fmt.Errorf("knowledge.resync_schedule: %w", err)
		}
	}

	return s.scheduler.Add(JobKVCleanup, kvCleanupSchedule, time.Minute, func(ctx context.Context) error {
		n, err := s.comps.DB.KVCleanExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info().Int64("removed", n).Msg("expired kv entries removed")
		}
		return nil
	})
}

func (s *Server) initializeWatcher() {
	if !s.cfg.Knowledge.Watch {
		return
	}
	if _, err := os.Stat(s.comps.DocsDir); errors.Is(err, fs.ErrNotExist) {
		s.logger.Info().Str("dir", s.comps.DocsDir).Msg("documents directory missing, watcher disabled")
		return
	}

	w, err := knowledge.NewWatcher(s.comps.DocsDir, watchDebounce, s.onDocumentsChanged,
		s.logger.With().Str("component", "knowledge-watcher").Logger())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to start knowledge watcher")
		return
	}
	s.watcher = w
}

func (s *Server) onDocumentsChanged(paths []string) {
	stats, err := s.syncer.IngestFiles(s.ctx, paths)
	if err != nil {
		s.logger.Warn().Err(err).Int("files", len(paths)).Msg("incremental ingest failed")
	}
	if stats.Updated+stats.Removed > 0 {
		s.gateway.NotifyKnowledgeSynced(stats)
	}
}

func (s *Server) resync(ctx context.Context) {
	stats, err := s.syncer.Sync(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("knowledge sync failed")
		}
		return
	}
	s.logger.Info().
		Int("files", stats.Files).
		Int("updated", stats.Updated).
		Int("removed", stats.Removed).
		Int("chunks", stats.Chunks).
		Msg("knowledge synced")
	if stats.Updated+stats.Removed > 0 {
		s.gateway.NotifyKnowledgeSynced(stats)
	}
}

// lockedSyncer serializes full and incremental ingests.
type lockedSyncer struct {
	mu       sync.Mutex
	ingester *knowledge.Ingester
}

func (l *lockedSyncer) Sync(ctx context.Context) (knowledge.IngestStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ingester.Sync(ctx)
}

func (l *lockedSyncer) IngestFiles(ctx context.Context, paths []string) (knowledge.IngestStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ingester.IngestFiles(ctx, paths)
}
