package entropy

// Stream turns a finite digest into an endless byte source by reading it
// cyclically. The output is periodic with period DigestSize: byte n equals
// byte n+64. It is exactly as random as the digest, no more; callers that
// draw more than 64 bytes see the digest again.
type Stream struct {
	buf    Digest
	cursor uint64
}

// NewStream wraps a copy of d with the cursor at 0.
func NewStream(d Digest) *Stream {
	return &Stream{buf: d}
}

// NextByte returns buf[cursor mod 64] and advances the cursor by one.
func (s *Stream) NextByte() byte {
	b := s.buf[s.cursor%DigestSize]
	s.cursor++
	return b
}

// Cursor returns how many bytes have been consumed.
func (s *Stream) Cursor() uint64 {
	return s.cursor
}
