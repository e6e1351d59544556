package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"panel-lab/contract"
	"panel-lab/errors"
	"panel-lab/media"

	"github.com/google/uuid"
)

const pcmBytesPerSample = 2

var (
	_ contract.Microphone = (*FFmpegMicrophone)(nil)
	_ contract.AudioSink  = (*FFplaySink)(nil)
)

// FFmpegMicrophone captures the default input device with an ffmpeg
// subprocess writing raw s16le PCM on its stdout.
type FFmpegMicrophone struct {
	device string
	log    *slog.Logger
}

// NewFFmpegMicrophone captures from device, or the platform default when empty.
func NewFFmpegMicrophone(device string, log *slog.Logger) *FFmpegMicrophone {
	return &FFmpegMicrophone{device: device, log: log}
}

func (m *FFmpegMicrophone) Acquire(_ context.Context) (*media.Stream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg is not in PATH", errors.ErrMicrophoneDenied)
	}
	args, err := micArgs(runtime.GOOS, m.device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMicrophoneDenied, err)
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open ffmpeg stdout: %v", errors.ErrMicrophoneDenied, err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", errors.ErrMicrophoneDenied, err)
	}

	stream := media.NewStream("mic-"+uuid.NewString(), func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	go m.capture(stdout, stream)
	return stream, nil
}

func (m *FFmpegMicrophone) capture(r io.Reader, stream *media.Stream) {
	defer stream.Stop()
	buf := make([]byte, media.FrameSamples*pcmBytesPerSample)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !stream.Stopped() {
				m.log.Debug("Microphone capture ended", "error", err)
			}
			return
		}
		stream.Publish(decodePCM(buf))
	}
}

func micArgs(goos, device string) ([]string, error) {
	rate := strconv.Itoa(media.SampleRate)
	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", device,
			"-ac", "1", "-ar", rate,
			"-f", "s16le", "-",
		}, nil
	case "linux":
		if device == "" {
			device = "default"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", device,
			"-ac", "1", "-ar", rate,
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s", goos)
	}
}

// FFplaySink plays every remote peer through its own ffplay process.
type FFplaySink struct {
	log *slog.Logger

	mu      sync.Mutex
	players map[string]*player
}

type player struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	release func()
}

func NewFFplaySink(log *slog.Logger) *FFplaySink {
	return &FFplaySink{log: log, players: make(map[string]*player)}
}

func (s *FFplaySink) Attach(peerID string, stream *media.Stream) error {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return fmt.Errorf("ffplay is not in PATH: %w", err)
	}
	s.Detach(peerID)

	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(media.SampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	frames, release := stream.Subscribe(64)
	p := &player{cmd: cmd, stdin: stdin, release: release}
	s.mu.Lock()
	s.players[peerID] = p
	s.mu.Unlock()

	go func() {
		for f := range frames {
			if _, err := stdin.Write(encodePCM(f)); err != nil {
				s.log.Debug("Playback stopped", "peer", peerID, "error", err)
				release()
				return
			}
		}
	}()
	return nil
}

func (s *FFplaySink) Detach(peerID string) {
	s.mu.Lock()
	p, ok := s.players[peerID]
	delete(s.players, peerID)
	s.mu.Unlock()
	if !ok {
		return
	}
	p.release()
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
}

// Close stops every player.
func (s *FFplaySink) Close() {
	s.mu.Lock()
	peers := make([]string, 0, len(s.players))
	for id := range s.players {
		peers = append(peers, id)
	}
	s.mu.Unlock()
	for _, id := range peers {
		s.Detach(id)
	}
}

func decodePCM(b []byte) media.Frame {
	f := make(media.Frame, len(b)/pcmBytesPerSample)
	for i := range f {
		f[i] = int16(binary.LittleEndian.Uint16(b[i*pcmBytesPerSample:]))
	}
	return f
}

func encodePCM(f media.Frame) []byte {
	b := make([]byte, len(f)*pcmBytesPerSample)
	for i, s := range f {
		binary.LittleEndian.PutUint16(b[i*pcmBytesPerSample:], uint16(s))
	}
	return b
}
