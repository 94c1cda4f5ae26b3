package position

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// maxLineLength bounds a buffered NMEA line; the standard caps sentences at 82 bytes.
const maxLineLength = 512

// SerialConfig holds configuration for a serial GPS receiver.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate (default: 9600).
	BaudRate int

	// ReadTimeout bounds each port read so Close is noticed (default: 200ms).
	ReadTimeout time.Duration

	Logger zerolog.Logger
}

// NMEASource turns a stream of NMEA sentences into fixes.
type NMEASource struct {
	rc     io.ReadCloser
	logger zerolog.Logger
	lines  chan string
	parser NMEAParser

	mu     sync.Mutex
	err    error
	closed bool
	done   chan struct{}
}

// OpenSerial opens a serial receiver and starts reading from it.
func OpenSerial(cfg SerialConfig) (*NMEASource, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port is required")
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}
	timeout := cfg.ReadTimeout
	if timeout == 0 {
		timeout = 200 * time.Millisecond
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}

	cfg.Logger.Info().
		Str("port", cfg.Port).
		Int("baud", baud).
		Msg("gps receiver connected")

	return NewNMEASource(port, cfg.Logger), nil
}

// NewNMEASource reads sentences from rc until it fails or the source is closed.
func NewNMEASource(rc io.ReadCloser, logger zerolog.Logger) *NMEASource {
	s := &NMEASource{
		rc:     rc,
		logger: logger,
		lines:  make(chan string, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// readLoop splits the stream into lines. A read returning no bytes and no
// error is a serial read timeout and is retried.
func (s *NMEASource) readLoop() {
	defer close(s.lines)

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := s.rc.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(bytes.TrimRight(pending[:i], "\r"))
				pending = pending[i+1:]
				select {
				case s.lines <- line:
				case <-s.done:
					return
				}
			}
			if len(pending) > maxLineLength {
				pending = pending[:0]
			}
		}
		if err != nil {
			if len(pending) > 0 && errors.Is(err, io.EOF) {
				select {
				case s.lines <- string(bytes.TrimRight(pending, "\r")):
				case <-s.done:
				}
			}
			s.setErr(err)
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *NMEASource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed && !errors.Is(err, io.EOF) {
		s.err = err
	}
}

// Next returns the next valid fix. Malformed sentences are logged and skipped.
// It returns ErrSourceClosed once the stream ends or the source is closed.
// Next must not be called concurrently.
func (s *NMEASource) Next(ctx context.Context) (Fix, error) {
	for {
		select {
		case <-s.done:
			return Fix{}, ErrSourceClosed
		default:
		}

		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		case <-s.done:
			return Fix{}, ErrSourceClosed
		case line, ok := <-s.lines:
			if !ok {
				s.mu.Lock()
				err := s.err
				s.mu.Unlock()
				if err != nil {
					return Fix{}, fmt.Errorf("%w: %w", ErrSourceClosed, err)
				}
				return Fix{}, ErrSourceClosed
			}
			if line == "" {
				continue
			}
			fix, ok, err := s.parser.Parse(line)
			if err != nil {
				s.logger.Debug().Err(err).Str("sentence", line).Msg("skipping nmea sentence")
				continue
			}
			if ok {
				return fix, nil
			}
		}
	}
}

// Close stops reading and closes the underlying stream.
func (s *NMEASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.rc.Close()
}

var _ Source = (*NMEASource)(nil)
