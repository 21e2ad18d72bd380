package keys

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"vostore/internal/identifiers"
)

// PartitionKeyLen is the encoded width of a partition key.
const PartitionKeyLen = 8

// DecodeError reports malformed key bytes and where decoding stopped.
type DecodeError struct {
	Data []byte
	Off  int
	Msg  string
	Err  error
}

func decodeErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DecodeError{Data: data, Off: off, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Error() string {
	const maxShown = 64
	data := e.Data
	suffix := ""
	if len(data) > maxShown {
		data, suffix = data[:maxShown], "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at offset %d: %v: (%d) %x%s", e.Msg, e.Off, e.Err, len(e.Data), data, suffix)
	}
	return fmt.Sprintf("%s at offset %d: (%d) %x%s", e.Msg, e.Off, len(e.Data), data, suffix)
}

// AppendPartitionKey appends pk as fixed-width big-endian, so byte order
// equals numeric order.
func AppendPartitionKey(buf []byte, pk identifiers.PartitionKey) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(pk))
}

// AppendString appends a uvarint length followed by the UTF-8 bytes.
func AppendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// AppendBytes appends a uvarint length followed by the raw bytes.
func AppendBytes(buf []byte, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// Decoder reads key fields in declared order.
type Decoder struct {
	orig []byte
	buf  []byte
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{orig: data, buf: data}
}

func (d *Decoder) Off() int {
	return len(d.orig) - len(d.buf)
}

func (d *Decoder) PartitionKey() (identifiers.PartitionKey, error) {
	if len(d.buf) < PartitionKeyLen {
		return 0, decodeErrf(d.orig, d.Off(), nil, "truncated partition key: %d bytes remaining, %d wanted", len(d.buf), PartitionKeyLen)
	}
	v := binary.BigEndian.Uint64(d.buf)
	d.buf = d.buf[PartitionKeyLen:]
	return identifiers.PartitionKey(v), nil
}

func (d *Decoder) length() (int, error) {
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		return 0, decodeErrf(d.orig, d.Off(), nil, "invalid length prefix")
	}
	if v > math.MaxInt32 {
		return 0, decodeErrf(d.orig, d.Off(), nil, "length prefix too large: %d", v)
	}
	d.buf = d.buf[n:]
	if int(v) > len(d.buf) {
		return 0, decodeErrf(d.orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.buf), v)
	}
	return int(v), nil
}

// Bytes returns a copy, so decoded keys never alias the source buffer.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out, nil
}

func (d *Decoder) String() (string, error) {
	off := d.Off()
	n, err := d.length()
	if err != nil {
		return "", err
	}
	raw := d.buf[:n]
	if !utf8.Valid(raw) {
		return "", decodeErrf(d.orig, off, nil, "invalid UTF-8 in string field")
	}
	d.buf = d.buf[n:]
	return string(raw), nil
}

// Finish fails if any bytes are left over.
func (d *Decoder) Finish() error {
	if len(d.buf) != 0 {
		return decodeErrf(d.orig, d.Off(), nil, "%d trailing bytes", len(d.buf))
	}
	return nil
}
