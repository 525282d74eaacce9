// Package entropy folds captured frame samples and fresh salt into a 512-bit
// digest, and exposes that digest as a cyclic byte stream.
package entropy

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"math"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/teslashibe/entropass/pkg/grid"
)

// DigestSize is the length in bytes of every supported digest.
const DigestSize = 64

// Salt sizes in bytes.
const (
	MinSaltSize     = 16
	DefaultSaltSize = 16
)

// Digest is the 512-bit output of Build.
type Digest [DigestSize]byte

// Algorithm names a supported 512-bit hash.
type Algorithm string

const (
	SHA512     Algorithm = "sha512"
	BLAKE2b512 Algorithm = "blake2b-512"
	SHA3_512   Algorithm = "sha3-512"
)

// Algorithms lists the supported hash names.
func Algorithms() []Algorithm {
	return []Algorithm{SHA512, BLAKE2b512, SHA3_512}
}

// Sentinel errors.
var (
	ErrUnknownAlgorithm = errors.New("entropy: unknown hash algorithm")
	ErrSaltTooShort     = errors.New("entropy: salt must be at least 16 bytes")
	ErrNoSamples        = errors.New("entropy: no samples")
	ErrSampleTooLarge   = errors.New("entropy: sample does not fit the digest encoding")
)

func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case SHA512, "":
		return sha512.New(), nil
	case BLAKE2b512:
		return blake2b.New512(nil)
	case SHA3_512:
		return sha3.New512(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
	}
}

// Builder serializes samples and salt and hashes them.
type Builder struct {
	algorithm Algorithm
	saltSize  int
	salt      io.Reader
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithAlgorithm selects the hash.
func WithAlgorithm(a Algorithm) Option {
	return func(b *Builder) { b.algorithm = a }
}

// WithSaltSize sets how many salt bytes are appended.
func WithSaltSize(n int) Option {
	return func(b *Builder) { b.saltSize = n }
}

// WithSaltSource replaces crypto/rand as the salt source. Only tests should
// use this; a predictable salt defeats the point of the digest.
func WithSaltSource(r io.Reader) Option {
	return func(b *Builder) { b.salt = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder. The default is SHA-512 with 16 bytes of
// salt from crypto/rand.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		algorithm: SHA512,
		saltSize:  DefaultSaltSize,
		salt:      rand.Reader,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if _, err := newHash(b.algorithm); err != nil {
		return nil, err
	}
	if b.saltSize < MinSaltSize {
		return nil, ErrSaltTooShort
	}
	if b.salt == nil {
		b.salt = rand.Reader
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "entropy")
	return b, nil
}

// Algorithm returns the configured hash name.
func (b *Builder) Algorithm() Algorithm {
	return b.algorithm
}

// Build hashes the samples, in order, followed by fresh salt.
func (b *Builder) Build(samples []grid.Sample) (Digest, error) {
	var d Digest
	if len(samples) == 0 {
		return d, ErrNoSamples
	}

	buf, err := Encode(samples)
	if err != nil {
		return d, err
	}

	salt := make([]byte, b.saltSize)
	if _, err := io.ReadFull(b.salt, salt); err != nil {
		return d, fmt.Errorf("entropy: read salt: %w", err)
	}
	buf = append(buf, salt...)

	h, err := newHash(b.algorithm)
	if err != nil {
		return d, err
	}
	h.Write(buf)
	copy(d[:], h.Sum(nil))

	b.logger.Debug("digest.built",
		"algorithm", b.algorithm,
		"samples", len(samples),
		"input_bytes", len(buf),
	)
	return d, nil
}

// Encode serializes samples without salt. Per sample, little-endian:
//
//	uint16  len(Flat)
//	[]byte  Flat
//	uint64  Timestamp, Unix milliseconds
//	uint8   UsedRealDevice
//	uint8   Shape.Rows
//	uint8   Shape.Cols
//	uint16  AvgBrightness×10, clamped to [0, 65535]
//
// The layout only needs to be stable within one process.
func Encode(samples []grid.Sample) ([]byte, error) {
	size := 0
	for _, s := range samples {
		size += 2 + len(s.Flat) + 8 + 1 + 2 + 2
	}
	buf := make([]byte, 0, size)

	for i, s := range samples {
		if len(s.Flat) > math.MaxUint16 || s.Shape.Rows > math.MaxUint8 || s.Shape.Cols > math.MaxUint8 ||
			s.Shape.Rows < 0 || s.Shape.Cols < 0 {
			return nil, fmt.Errorf("%w: sample %d", ErrSampleTooLarge, i)
		}

		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s.Flat)))
		buf = append(buf, s.Flat...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(max(0, s.Timestamp.UnixMilli())))
		if s.UsedRealDevice {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, uint8(s.Shape.Rows), uint8(s.Shape.Cols))
		buf = binary.LittleEndian.AppendUint16(buf, QuantizeBrightness(s.AvgBrightness))
	}
	return buf, nil
}

// QuantizeBrightness scales brightness by 10 and clamps it to uint16.
func QuantizeBrightness(v float64) uint16 {
	scaled := v * 10
	switch {
	case math.IsNaN(scaled) || scaled <= 0:
		return 0
	case scaled >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(scaled)
	}
}
