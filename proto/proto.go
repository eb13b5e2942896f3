// Package proto implements the ASCII command set of the syringe pump: the
// command verbs, the status prompts the pump appends to every reply and the
// codecs for the values it exchanges.
package proto

import (
	"fmt"
	"strings"
)

const (
	// Terminal control
	LF = '\n'
	CR = '\r'

	// MaxScan is the number of bytes after the leading line feed within which
	// a status prompt must appear.
	MaxScan = 50
)

// Command verbs
const (
	VerbVersion        = "VER"
	VerbRate           = "RAT"
	VerbMode           = "MOD"
	VerbDiameter       = "DIA"
	VerbTarget         = "TGT"
	VerbDelivered      = "DEL"
	VerbRun            = "RUN"
	VerbStop           = "STP"
	VerbClearDelivered = "CLD"
	VerbDirection      = "DIR"
)

// Direction arguments
const (
	DirInfuse  = "INF"
	DirRefill  = "REF"
	DirReverse = "REV"
)

// Command renders one request line: "<address> <VERB>[ <args>]\r".
func Command(address int, verb string, args ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", address, verb)
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	b.WriteByte(CR)
	return b.String()
}

// Status is the run state reported by the prompt character.
type Status int

const (
	// StatusNotConnected is the state of a pump that has never produced a
	// valid frame.
	StatusNotConnected Status = iota
	StatusStopped
	StatusRunning
	StatusReverse
	StatusPaused
	StatusWaitingForTrigger
)

var prompts = map[byte]Status{
	':': StatusStopped,
	'>': StatusRunning,
	'<': StatusReverse,
	'/': StatusPaused,
	'*': StatusStopped,
	'^': StatusWaitingForTrigger,
}

// StatusFromPrompt maps a prompt character to its status.
func StatusFromPrompt(c byte) (Status, bool) {
	s, ok := prompts[c]
	return s, ok
}

// IsPrompt reports whether c is one of the recognised prompt characters.
func IsPrompt(c byte) bool {
	_, ok := prompts[c]
	return ok
}

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "not connected"
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusReverse:
		return "reverse"
	case StatusPaused:
		return "paused"
	case StatusWaitingForTrigger:
		return "wait"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for c := StatusNotConnected; c <= StatusWaitingForTrigger; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Mode is the pump's operating mode.
type Mode int

const (
	// ModePump runs continuously at the set rate.
	ModePump Mode = iota
	// ModeVolume stops once the target volume has been delivered.
	ModeVolume
)

// Code returns the MOD argument for m.
func (m Mode) Code() (string, error) {
	switch m {
	case ModePump:
		return "PMP", nil
	case ModeVolume:
		return "VOL", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
}

func (m Mode) String() string {
	switch m {
	case ModePump:
		return "pump"
	case ModeVolume:
		return "volume"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "pump", "volume" or the wire codes, in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pump", "pmp":
		return ModePump, nil
	case "volume", "vol":
		return ModeVolume, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}
