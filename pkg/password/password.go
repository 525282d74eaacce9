// Package password assembles a password from a deterministic byte source
// while guaranteeing one character from each required group.
package password

import (
	"errors"
	"fmt"
	"log/slog"
)

// Accepted password lengths, inclusive.
const (
	MinLength     = 4
	MaxLength     = 30
	DefaultLength = 16
)

// ErrInvalidRequest is the sentinel behind every RequestError.
var ErrInvalidRequest = errors.New("password: invalid request")

// RequestError describes a rejected request. Reason is safe to show to users.
type RequestError struct {
	Reason string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return "password: " + e.Reason
}

// Unwrap makes errors.Is(err, ErrInvalidRequest) hold.
func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

func invalid(reason string) error {
	return &RequestError{Reason: reason}
}

// ByteSource yields an endless sequence of bytes. entropy.Stream implements it.
type ByteSource interface {
	NextByte() byte
}

// Request describes the password to build.
type Request struct {
	Length int

	// Allowed groups make up the alphabet, together with Extra.
	Allowed []Group

	// Required groups must each appear at least once. Empty means Allowed.
	Required []Group

	// Extra characters appended to the alphabet.
	Extra string
}

// DefaultRequest returns a request for length characters over every group.
func DefaultRequest(length int) Request {
	return Request{Length: length, Allowed: DefaultGroups}
}

// Synthesizer builds passwords within a length range.
type Synthesizer struct {
	MinLength int
	MaxLength int

	logger *slog.Logger
}

// NewSynthesizer returns a Synthesizer enforcing MinLength..MaxLength.
func NewSynthesizer(logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		MinLength: MinLength,
		MaxLength: MaxLength,
		logger:    logger.With("component", "password"),
	}
}

// Validate checks the request without consuming any randomness.
func (s *Synthesizer) Validate(req Request) error {
	if req.Length < s.MinLength || req.Length > s.MaxLength {
		return invalid(fmt.Sprintf("length must be between %d and %d", s.MinLength, s.MaxLength))
	}
	_, err := buildCharset(req.Allowed, req.Extra)
	return err
}

// Synthesize draws a password from src.
//
// One character is drawn for each required group in order, then the rest
// come from the full alphabet, then a Fisher-Yates pass driven by src
// spreads them out. When Length is smaller than the number of required
// groups only the first Length groups are covered.
func (s *Synthesizer) Synthesize(req Request, src ByteSource) (string, error) {
	if err := s.Validate(req); err != nil {
		return "", err
	}
	cs, _ := buildCharset(req.Allowed, req.Extra)

	required := resolveRequired(req.Required, cs)

	chars := make([]rune, 0, req.Length)
	for _, g := range required {
		if len(chars) == req.Length {
			break
		}
		chars = append(chars, pick(cs.byName[g], src))
	}
	for len(chars) < req.Length {
		chars = append(chars, pick(cs.all, src))
	}

	for i := len(chars) - 1; i > 0; i-- {
		j := int(src.NextByte()) % (i + 1)
		chars[i], chars[j] = chars[j], chars[i]
	}

	s.logger.Debug("password.generated", "length", len(chars), "required_groups", len(required))
	return string(chars[:req.Length]), nil
}

// resolveRequired keeps the requested groups that are allowed, in request
// order. If none survive, the first allowed group is required instead.
func resolveRequired(requested []Group, cs *charsetSet) []Group {
	if len(requested) == 0 {
		requested = cs.order
	}

	var out []Group
	seen := make(map[Group]bool)
	for _, g := range requested {
		if _, ok := cs.byName[g]; ok && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	if len(out) == 0 && len(cs.order) > 0 {
		out = []Group{cs.order[0]}
	}
	return out
}

func pick(alphabet []rune, src ByteSource) rune {
	return alphabet[int(src.NextByte())%len(alphabet)]
}
