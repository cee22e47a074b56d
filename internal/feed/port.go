package feed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.bug.st/serial"
)

// OpenSource opens the telemetry source named by path:
//
//   - "" or "-" reads standard input,
//   - paths under /dev/ are opened as serial ports at baudRate,
//   - anything else is opened as a recorded feed file for replay.
func OpenSource(path string, baudRate int) (LinePorter, error) {
	switch {
	case path == "" || path == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(path, "/dev/"):
		return OpenSerial(path, baudRate)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open feed file: %w", err)
		}
		return f, nil
	}
}

// OpenSerial opens a serial telemetry port with 8N1 framing.
func OpenSerial(path string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}
