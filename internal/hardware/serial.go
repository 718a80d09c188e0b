package hardware

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// defaultReadTimeout bounds a single port read. A firmware that goes silent
// shows up as timed-out reads, which the sampler counts and escalates,
// instead of a goroutine parked forever inside a blocking read.
const defaultReadTimeout = 100 * time.Millisecond

// SerialSensor reads velocity over a serial line. The firmware emits one
// decimal cm/min reading per line at its own cadence; each Velocity call
// consumes the next line or fails within the read timeout.
type SerialSensor struct {
	portName    string
	mode        *serial.Mode
	readTimeout time.Duration

	mu   sync.Mutex
	port serial.Port
	r    io.Reader
	buf  []byte
}

// NewSerialSensor creates a sensor bound to the given serial device. The
// port is opened on Start, not here, so construction never touches hardware.
func NewSerialSensor(portName string) *SerialSensor {
	return &SerialSensor{
		portName: portName,
		mode: &serial.Mode{
			BaudRate: 115200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		readTimeout: defaultReadTimeout,
	}
}

// Start opens the serial port with the read timeout armed.
func (s *SerialSensor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	port, err := serial.Open(s.portName, s.mode)
	if err != nil {
		return fmt.Errorf("open sensor port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", s.portName, err)
	}
	s.port = port
	s.r = port
	s.buf = nil
	return nil
}

// Stop closes the serial port.
func (s *SerialSensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.r = nil
	s.buf = nil
	return err
}

// Velocity reads and parses the next line from the port. A silent firmware
// yields ErrSensorTimeout rather than blocking.
func (s *SerialSensor) Velocity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return 0, ErrSensorStopped
	}
	line, err := s.readLine()
	if err != nil {
		return 0, err
	}
	return parseVelocityLine(line)
}

// readLine accumulates port reads until a newline. With the read timeout
// armed, a read returning zero bytes means the firmware produced nothing in
// time; that is a failed sample, not a reason to keep waiting.
func (s *SerialSensor) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := string(s.buf[:i])
			rest := copy(s.buf, s.buf[i+1:])
			s.buf = s.buf[:rest]
			return line, nil
		}

		chunk := make([]byte, 64)
		n, err := s.r.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("read sensor line: %w", err)
		}
		if n == 0 {
			return "", fmt.Errorf("%w: no line within %s", ErrSensorTimeout, s.readTimeout)
		}
		s.buf = append(s.buf, chunk[:n]...)
	}
}

// parseVelocityLine parses one firmware line. Lines are either a bare float
// or "v,<float>" when the firmware's verbose mode is on.
func parseVelocityLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "v,"); ok {
		line = rest
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("parse velocity %q: %w", line, err)
	}
	return v, nil
}
