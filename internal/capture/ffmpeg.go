package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// startupGrace is how long Acquire waits for ffmpeg to reject the device
// before treating the stream as granted.
const startupGrace = 750 * time.Millisecond

// FFmpegSource records system audio through an ffmpeg child process and
// emits Opus-in-WebM chunks on stdout.
type FFmpegSource struct {
	Binary string
	// Device overrides the platform default input device.
	Device string
}

// NewFFmpegSource creates a source using binary (looked up in PATH).
func NewFFmpegSource(binary, device string) *FFmpegSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegSource{Binary: binary, Device: device}
}

func (s *FFmpegSource) inputArgs() ([]string, error) {
	switch runtime.GOOS {
	case "linux":
		dev := s.Device
		if dev == "" {
			dev = "default"
		}
		return []string{"-f", "pulse", "-i", dev}, nil
	case "darwin":
		dev := s.Device
		if dev == "" {
			dev = ":0"
		}
		return []string{"-f", "avfoundation", "-i", dev}, nil
	case "windows":
		if s.Device == "" {
			return nil, errors.New("CAPTURE_DEVICE is required on windows (dshow device name)")
		}
		return []string{"-f", "dshow", "-i", "audio=" + s.Device}, nil
	default:
		return nil, fmt.Errorf("no capture backend for %s", runtime.GOOS)
	}
}

// Acquire starts ffmpeg and returns once it is recording.
func (s *FFmpegSource) Acquire(ctx context.Context) (Stream, error) {
	path, err := exec.LookPath(s.Binary)
	if err != nil {
		return nil, &Error{Kind: KindUnsupportedEnvironment, Err: fmt.Errorf("ffmpeg not found: %w", err)}
	}

	input, err := s.inputArgs()
	if err != nil {
		return nil, &Error{Kind: KindUnsupportedEnvironment, Err: err}
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args, "-vn", "-ac", "1", "-ar", "48000", "-c:a", "libopus", "-f", "webm", "pipe:1")

	st, err := launch(path, args)
	if err != nil {
		return nil, err
	}
	if err := st.await(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// launch starts the process and its output pump. The process outlives any
// request context; Close or abort ends it.
func launch(path string, args []string) (*ffmpegStream, error) {
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Kind: KindDeviceUnavailable, Err: err}
	}
	st := &ffmpegStream{
		cmd:    cmd,
		chunks: make(chan []byte, 64),
		ended:  make(chan struct{}),
	}
	cmd.Stderr = &st.stderr

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindDeviceUnavailable, Err: fmt.Errorf("starting ffmpeg: %w", err)}
	}
	go st.pump(stdout)
	return st, nil
}

// await waits out the startup grace period. ctx only bounds the permission
// wait; on cancellation the process is killed and reaped.
func (s *ffmpegStream) await(ctx context.Context) error {
	timer := time.NewTimer(startupGrace)
	defer timer.Stop()

	select {
	case <-s.ended:
		return &Error{Kind: ClassifyStderr(s.stderrText()), Err: fmt.Errorf("ffmpeg exited: %s", strings.TrimSpace(s.stderrText()))}
	case <-ctx.Done():
		s.abort()
		return &Error{Kind: KindPermissionDenied, Err: ctx.Err()}
	case <-timer.C:
	}
	return nil
}

// ClassifyStderr maps ffmpeg diagnostics onto a capture Kind.
func ClassifyStderr(stderr string) Kind {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "permission denied"),
		strings.Contains(s, "operation not permitted"),
		strings.Contains(s, "not authorized"):
		return KindPermissionDenied
	case strings.Contains(s, "unknown input format"),
		strings.Contains(s, "unknown encoder"):
		return KindUnsupportedEnvironment
	default:
		return KindDeviceUnavailable
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type ffmpegStream struct {
	cmd       *exec.Cmd
	stderr    syncBuffer
	chunks    chan []byte
	ended     chan struct{}
	closeOnce sync.Once
}

type ffmpegTrack struct{}

func (ffmpegTrack) Kind() TrackKind { return TrackAudio }
func (ffmpegTrack) Stop()           {}

func (s *ffmpegStream) Tracks() []Track        { return []Track{ffmpegTrack{}} }
func (s *ffmpegStream) Chunks() <-chan []byte  { return s.chunks }
func (s *ffmpegStream) Ended() <-chan struct{} { return s.ended }
func (s *ffmpegStream) MimeType() string       { return "audio/webm;codecs=opus" }
func (s *ffmpegStream) stderrText() string     { return s.stderr.String() }

// Close asks ffmpeg to finish the container; the remaining output is still
// delivered on Chunks before it closes.
func (s *ffmpegStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		if runtime.GOOS == "windows" {
			err = s.cmd.Process.Kill()
		} else {
			err = s.cmd.Process.Signal(os.Interrupt)
		}
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

// abort kills the process without waiting for a clean container, discards
// pending output and returns once the process has been reaped.
func (s *ffmpegStream) abort() {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	for range s.chunks {
	}
	<-s.ended
}

func (s *ffmpegStream) pump(stdout io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			break
		}
	}
	close(s.chunks)
	_ = s.cmd.Wait()
	close(s.ended)
}
