package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/enroll/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// frame writes the length header and body the way worker.py does on FD 3.
func frame(dst io.Writer, payload []byte) {
	binary.Write(dst, binary.BigEndian, uint32(len(payload)))
	dst.Write(payload)
}

func okPayload(boxes [][4]int32, firstComponents []float32) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)                                        // Status OK
	binary.Write(payload, binary.BigEndian, uint32(len(boxes))) // NumFaces
	for i, box := range boxes {
		binary.Write(payload, binary.BigEndian, box)
		vec := [types.EmbeddingDim]float32{}
		vec[0] = firstComponents[i]
		binary.Write(payload, binary.BigEndian, vec)
	}
	return payload.Bytes()
}

func TestExtract(t *testing.T) {
	// stdinMock simulates the pipe TO Python (we write to it)
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	// dataPipeMock simulates the pipe FROM Python (we read from it)
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	frame(dataPipeMock, okPayload([][4]int32{{10, 40, 50, 5}, {60, 90, 100, 55}}, []float32{0.5, -0.25}))

	w := &PythonWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: dataPipeMock,
		// Cmd is nil because we aren't testing process management, just the protocol
	}

	inputImage := []byte{0xDE, 0xAD, 0xBE, 0xEF} // Fake image bytes
	faces, err := w.Extract(context.Background(), inputImage)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Verify Go sent the correct data TO Python: 4 bytes header + data
	sentData := stdinMock.Bytes()
	if len(sentData) != 4+len(inputImage) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputImage), len(sentData))
	}
	if binary.BigEndian.Uint32(sentData[:4]) != uint32(len(inputImage)) {
		t.Errorf("Wrong length header: %X", sentData[:4])
	}

	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}
	top, right, bottom, left := faces[0].Box()
	if top != 10 || right != 40 || bottom != 50 || left != 5 {
		t.Errorf("Unexpected box %v", faces[0].Loc)
	}
	if len(faces[0].Vec) != types.EmbeddingDim {
		t.Errorf("Expected %d-d vector, got %d", types.EmbeddingDim, len(faces[0].Vec))
	}
	// Use epsilon for float comparison
	if math.Abs(faces[0].Vec[0]-0.5) > 1e-9 {
		t.Errorf("Expected vector[0] approx 0.5, got %f", faces[0].Vec[0])
	}
	if math.Abs(faces[1].Vec[0]+0.25) > 1e-9 {
		t.Errorf("Expected second vector[0] approx -0.25, got %f", faces[1].Vec[0])
	}
}

func TestExtract_NoFaces(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	frame(dataPipeMock, okPayload(nil, nil))

	w := &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}
	faces, err := w.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected 0 faces, got %d", len(faces))
	}
}

func TestExtract_Error(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1) // Status ERROR
	errMsg := "cannot identify image file"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	frame(dataPipeMock, payload.Bytes())

	w := &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}
	_, err := w.Extract(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Expected *RemoteError, got %T", err)
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
	if errors.Is(err, ErrWorkerCrashed) {
		t.Error("A remote error must not be classified as a crash")
	}
}

func TestExtract_Crash(t *testing.T) {
	tests := []struct {
		name string
		pipe []byte
	}{
		{name: "EOF before header", pipe: nil},
		{name: "Unknown status", pipe: func() []byte {
			b := new(bytes.Buffer)
			frame(b, []byte{7})
			return b.Bytes()
		}()},
		{name: "Truncated vector", pipe: func() []byte {
			full := okPayload([][4]int32{{1, 2, 3, 4}}, []float32{0.1})
			b := new(bytes.Buffer)
			frame(b, full[:len(full)-10])
			return b.Bytes()
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &PythonWorker{
				ID:       1,
				Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
				DataPipe: &MockCloser{Buffer: bytes.NewBuffer(tt.pipe)},
			}
			_, err := w.Extract(context.Background(), []byte("img"))
			if !errors.Is(err, ErrWorkerCrashed) {
				t.Errorf("Expected ErrWorkerCrashed, got %v", err)
			}
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	// A pipe nobody writes to simulates a hung engine
	r, wr := io.Pipe()
	defer wr.Close()

	w := &PythonWorker{
		ID:          1,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    r,
		ReadTimeout: 20 * time.Millisecond,
	}

	start := time.Now()
	_, err := w.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Timeout did not fire promptly")
	}
}

func TestExtract_ContextCancelled(t *testing.T) {
	r, wr := io.Pipe()
	defer wr.Close()

	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: r,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Extract(ctx, []byte("img")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Python != "python3" || cfg.Script != "python/worker.py" || cfg.Model != "hog" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}

	cfg = Config{Model: "cnn"}.withDefaults()
	if cfg.Model != "cnn" {
		t.Errorf("Explicit model overridden: %+v", cfg)
	}
}
