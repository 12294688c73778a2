package decoder

import (
	"encoding/binary"

	"chainScope/internal/model"
)

// reader walks a raw transaction buffer, producing DecodeErrors that carry
// the failing payload offset.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) take(n int, what string) ([]byte, error) {
	if r.remaining() < n {
		return nil, model.NewDecodeError(r.pos, "short read: need %d bytes for %s, have %d", n, what, r.remaining())
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u8(what string) (byte, error) {
	b, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16(what string) (uint16, error) {
	b, err := r.take(2, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32(what string) (uint32, error) {
	b, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64(what string) (uint64, error) {
	b, err := r.take(8, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// lpString8 reads a u8 length-prefixed string.
func (r *reader) lpString8(what string) (string, error) {
	n, err := r.u8(what)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// lpBytes32 reads a u32 length-prefixed byte blob.
func (r *reader) lpBytes32(what string) ([]byte, error) {
	n, err := r.u32(what)
	if err != nil {
		return nil, err
	}
	return r.take(int(n), what)
}
