package proto

import (
	"fmt"
	"io"
	"strings"

	"i4.energy/lab/pumpctl/transport"
)

// Frame is one decoded pump response.
type Frame struct {
	// Reply is the trimmed text preceding the last carriage return, empty
	// when the pump answered with a bare prompt.
	Reply string
	// Status is decoded from the prompt character ending the frame.
	Status Status
	// Raw holds the bytes read after the leading line feed.
	Raw []byte
}

// ReadFrame reads one response from r.
//
// A frame is "\n", optional reply text ended by "\r", then the pump
// address digit and a prompt character. The pump sends no length and no
// terminator, so the reader scans byte by byte for a digit followed by a
// prompt and gives up after MaxScan bytes.
//
// Once started, a frame is read to its prompt, the scan cap or a read
// error.
func ReadFrame(r io.Reader) (Frame, error) {
	b, err := transport.ReadByte(r)
	if err != nil {
		return Frame{}, err
	}
	if b != LF {
		return Frame{Raw: []byte{b}}, fmt.Errorf("%w: expected LF, saw %q", ErrFraming, b)
	}

	var (
		buf   = make([]byte, 0, MaxScan)
		reply string
	)
	for i := 0; i < MaxScan; i++ {
		b, err := transport.ReadByte(r)
		if err != nil {
			return Frame{Raw: buf}, err
		}
		buf = append(buf, b)

		// A later CR replaces the candidate reply.
		if b == CR {
			reply = strings.TrimSpace(string(buf))
		}
		if status, ok := promptSuffix(buf); ok {
			return Frame{Reply: reply, Status: status, Raw: buf}, nil
		}
	}
	return Frame{Raw: buf}, fmt.Errorf("%w, got %q", ErrNoPrompt, buf)
}

// promptSuffix reports whether buf ends in <ASCII digit><prompt>.
func promptSuffix(buf []byte) (Status, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	digit := buf[len(buf)-2]
	if digit < '0' || digit > '9' {
		return 0, false
	}
	return StatusFromPrompt(buf[len(buf)-1])
}
