package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/enroll/internal/types"
	"github.com/andresmejia3/enroll/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK    = 0
	statusError = 1

	// maxPayload guards against a corrupted length header allocating gigabytes.
	maxPayload = 64 * 1024 * 1024
)

var (
	// ErrTimeout is returned when the worker did not answer within ReadTimeout.
	// The worker process is killed; the failure belongs to the image, not the engine.
	ErrTimeout = errors.New("python worker timed out")

	// ErrWorkerCrashed wraps transport failures (broken pipe, EOF, garbage framing).
	ErrWorkerCrashed = errors.New("python worker crashed")
)

// RemoteError is an error reported by worker.py for a single image
// (unreadable file, encoder exception). The worker stays usable.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "python worker error: " + e.Msg }

// Config tunes how the Python engine is launched.
type Config struct {
	Python      string        // interpreter, default "python3"
	Script      string        // default "python/worker.py"
	Model       string        // face_locations model: "hog" or "cnn"
	ReadTimeout time.Duration // zero disables the timeout
}

func (c Config) withDefaults() Config {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.Script == "" {
		c.Script = "python/worker.py"
	}
	if c.Model == "" {
		c.Model = "hog"
	}
	return c
}

type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewPythonWorker starts worker.py and wires a side-channel pipe (FD 3) for responses,
// so that anything the face library prints on stdout cannot corrupt the framing.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	cfg = cfg.withDefaults()
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script, "--model", cfg.Model)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Extract sends one encoded image to the engine and returns every face it found,
// in detection order.
func (w *PythonWorker) Extract(ctx context.Context, data []byte) ([]types.FaceResult, error) {
	resp, err := w.communicate(ctx, data)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

func (w *PythonWorker) communicate(ctx context.Context, data []byte) ([]byte, error) {
	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.roundTrip(data)
		done <- reply{body, err}
	}()

	var timeout <-chan time.Time
	if w.ReadTimeout > 0 {
		timer := time.NewTimer(w.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWorkerCrashed, r.err)
		}
		return r.body, nil
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("%w after %s", ErrTimeout, w.ReadTimeout)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

// roundTrip implements the framing. Protocol: [Length][Data] both ways.
func (w *PythonWorker) roundTrip(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxPayload {
		return nil, fmt.Errorf("response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// parseResponse decodes a payload.
// OK:    [Status:0] [NumFaces:u32] NumFaces x ([Box: 4 x i32] [Vec: 128 x f32])
// Error: [Status:1] [MsgLen:u32] [Msg]
func parseResponse(resp []byte) ([]types.FaceResult, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty response", ErrWorkerCrashed)
	}

	switch status {
	case statusOK:
	case statusError:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: truncated error message", ErrWorkerCrashed)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("%w: truncated error message", ErrWorkerCrashed)
		}
		return nil, &RemoteError{Msg: string(msg)}
	default:
		return nil, fmt.Errorf("%w: unknown status byte %d", ErrWorkerCrashed, status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: missing face count", ErrWorkerCrashed)
	}

	faces := make([]types.FaceResult, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		var vec [types.EmbeddingDim]float32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("%w: face %d box: %v", ErrWorkerCrashed, i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("%w: face %d vector: %v", ErrWorkerCrashed, i, err)
		}

		f := types.FaceResult{
			Loc: []int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec: make([]float64, types.EmbeddingDim),
		}
		for j, v := range vec {
			if math.IsNaN(float64(v)) {
				return nil, fmt.Errorf("%w: face %d has NaN component", ErrWorkerCrashed, i)
			}
			f.Vec[j] = float64(v)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
