package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/andresmejia3/enroll/internal/types"
	"github.com/andresmejia3/enroll/internal/utils"
)

// Supervisor owns a single PythonWorker and replaces it after a timeout,
// so one stuck image does not take the polling loop down with it.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	current  *PythonWorker
	last     *utils.SafeCommand // most recently retired process, for crash logs
	restarts int
}

func NewSupervisor(cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{cfg: cfg, logger: logger}
}

// Start launches the engine eagerly so startup failures (missing python,
// ModuleNotFoundError) surface before any image is touched.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.current != nil {
		return nil
	}
	w, err := NewPythonWorker(ctx, s.restarts, s.cfg)
	if err != nil {
		return err
	}
	s.current = w
	return nil
}

// Extract forwards to the live worker, starting one if needed.
func (s *Supervisor) Extract(ctx context.Context, data []byte) ([]types.FaceResult, error) {
	if err := s.Start(ctx); err != nil {
		return nil, errors.Join(ErrWorkerCrashed, err)
	}

	faces, err := s.current.Extract(ctx, data)
	if err == nil {
		return faces, nil
	}

	var remote *RemoteError
	switch {
	case errors.As(err, &remote):
		// Worker is still healthy
	case errors.Is(err, ErrTimeout):
		s.logger.Warn("engine timed out, restarting", "worker", s.current.ID, "timeout", s.cfg.ReadTimeout)
		s.reset()
	default:
		s.reset()
	}
	return nil, err
}

// Cmd exposes the running (or last retired) process so callers can dump its stderr.
func (s *Supervisor) Cmd() *utils.SafeCommand {
	if s.current == nil {
		return s.last
	}
	return s.current.Cmd
}

func (s *Supervisor) reset() {
	s.current.Close()
	s.last = s.current.Cmd
	s.current = nil
	s.restarts++
}

func (s *Supervisor) Close() {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}
