package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/healthsync/internal/config"
	"github.com/tonimelisma/healthsync/internal/platform"
	"github.com/tonimelisma/healthsync/internal/reachability"
	"github.com/tonimelisma/healthsync/internal/tokenfile"
)

// Service bundles the collaborators one command needs: the dispatcher, the
// session manager bound to it, the dataset resolver and the upload pipeline,
// all gated by a reachability probe against the configured host.
type Service struct {
	Resolved *config.Resolved
	Probe    *reachability.Probe
	Client   *platform.Client
	Sessions *platform.SessionManager
	Datasets *platform.DatasetResolver
	Pipeline *platform.Pipeline

	queue  *platform.CompletionQueue
	logger *slog.Logger
}

// NewService wires a Service for the resolved configuration. Nothing is
// sent to the server here; the probe only dials the host.
func NewService(ctx context.Context, resolved *config.Resolved, logger *slog.Logger) (*Service, error) {
	if resolved == nil {
		return nil, errors.New("no configuration loaded")
	}

	probe, err := reachability.NewProbe(resolved.Environment.BaseURL(), resolved.ProbeInterval, logger)
	if err != nil {
		return nil, err
	}

	probe.Check(ctx)

	client := platform.NewClient(platform.Options{
		HTTPClient:   newHTTPClient(),
		Reachability: probe,
		UserAgent:    userAgent(),
		Logger:       logger,
	})

	queue := platform.NewCompletionQueue(logger)
	pipeline := platform.NewPipeline(client, queue, logger)
	pipeline.MaxBatchSize = resolved.Upload.BatchSize

	return &Service{
		Resolved: resolved,
		Probe:    probe,
		Client:   client,
		Sessions: platform.NewSessionManager(client, logger),
		Datasets: platform.NewDatasetResolver(client, logger),
		Pipeline: pipeline,
		queue:    queue,
		logger:   logger,
	}, nil
}

// Close stops background work. Transfers still in flight are failed with
// ErrTransportReset.
func (s *Service) Close() {
	s.Probe.SetNotifications(false)

	if n := s.Pipeline.ResetTransport(platform.ErrTransportReset); n > 0 {
		s.logger.Warn("abandoned in-flight transfers", slog.Int("count", n))
	}

	s.queue.Close()
}

// Restore installs the saved session and starts persisting every later
// change: a refreshed token is written back and a cleared session (logout,
// or a 401 from any call) removes the file.
func (s *Service) Restore() (*platform.Session, error) {
	path := s.Resolved.TokenPath

	sess, _, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		return nil, platform.ErrNotLoggedIn
	}

	if sess.Environment != s.Resolved.Environment {
		return nil, fmt.Errorf("saved session belongs to environment %q, not %q: %w",
			sess.Environment, s.Resolved.Environment, platform.ErrNotLoggedIn)
	}

	if err := s.Sessions.Restore(sess); err != nil {
		return nil, err
	}

	s.Persist()

	return sess, nil
}

// Persist subscribes the session file to session changes.
func (s *Service) Persist() {
	path := s.Resolved.TokenPath

	s.Sessions.Subscribe(func(sess *platform.Session) {
		if sess == nil {
			if err := tokenfile.Remove(path); err != nil {
				s.logger.Warn("removing session file", slog.String("path", path), slog.String("error", err.Error()))
			}

			return
		}

		meta := map[string]string{tokenfile.MetaSavedAt: time.Now().UTC().Format(time.RFC3339)}
		if u := s.Sessions.User(); u != nil {
			meta[tokenfile.MetaEmail] = u.Email
			meta[tokenfile.MetaFullName] = u.FullName
		}

		if prev, err := tokenfile.ReadMeta(path); err == nil {
			for k, v := range prev {
				if _, ok := meta[k]; !ok {
					meta[k] = v
				}
			}
		}

		if err := tokenfile.Save(path, sess, meta); err != nil {
			s.logger.Error("saving session file", slog.String("path", path), slog.String("error", err.Error()))
		}
	})
}

// ResolveDataset restores the session and resolves the configured dataset.
func (s *Service) ResolveDataset(ctx context.Context) (*platform.Session, platform.Dataset, error) {
	sess, err := s.Restore()
	if err != nil {
		return nil, platform.Dataset{}, err
	}

	ds, err := s.Datasets.Resolve(ctx, sess, s.Resolved.Dataset())
	if err != nil {
		return nil, platform.Dataset{}, fmt.Errorf("resolving dataset: %w", err)
	}

	return sess, ds, nil
}
