package repositories

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// record encodes badger values in the protobuf wire format.
// Zero values are omitted, like proto3 scalars.
type record struct {
	buf []byte
}

func (r *record) putUint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	r.buf = protowire.AppendTag(r.buf, num, protowire.VarintType)
	r.buf = protowire.AppendVarint(r.buf, v)
}

func (r *record) putInt(num protowire.Number, v int64) {
	r.putUint(num, protowire.EncodeZigZag(v))
}

func (r *record) putTime(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	r.putInt(num, t.UnixNano())
}

func (r *record) putString(num protowire.Number, s string) {
	if s == "" {
		return
	}
	r.buf = protowire.AppendTag(r.buf, num, protowire.BytesType)
	r.buf = protowire.AppendString(r.buf, s)
}

// field is one decoded value. Only the member matching the wire type is set.
type field struct {
	varint uint64
	bytes  []byte
}

func (f field) asInt() int64 {
	return protowire.DecodeZigZag(f.varint)
}

func (f field) asTime() time.Time {
	return time.Unix(0, f.asInt()).UTC()
}

func (f field) asString() string {
	return string(f.bytes)
}

// decodeRecord walks every field of b. Unknown fields are handed to visit as
// well, so callers simply ignore numbers they do not know.
func decodeRecord(b []byte, visit func(num protowire.Number, f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decoding tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("decoding field %d: %w", num, protowire.ParseError(n))
			}
			visit(num, field{varint: v})
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("decoding field %d: %w", num, protowire.ParseError(n))
			}
			visit(num, field{bytes: v})
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
