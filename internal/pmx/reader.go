package pmx

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/encoding/unicode"
)

// reader walks a byte slice. The first failure is kept in err and every
// later read returns a zero value, so callers check err once per record.
type reader struct {
	data []byte
	off  int
	err  error

	enc TextEncoding
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(&TruncatedDataError{Offset: r.off, Want: n, Have: len(r.data) - r.off})
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) vec2() mgl32.Vec2 {
	return mgl32.Vec2{r.f32(), r.f32()}
}

func (r *reader) vec3() mgl32.Vec3 {
	return mgl32.Vec3{r.f32(), r.f32(), r.f32()}
}

func (r *reader) vec4() mgl32.Vec4 {
	return mgl32.Vec4{r.f32(), r.f32(), r.f32(), r.f32()}
}

// quat reads x, y, z, w.
func (r *reader) quat() mgl32.Quat {
	v := r.vec4()
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// index decodes an index of the given width. The all-ones value is None;
// any other value is read unsigned. Values beyond int32 range are clamped so
// that validation reports them as out of range.
func (r *reader) index(width uint8) Index {
	var raw, ones uint32
	switch width {
	case 1:
		raw, ones = uint32(r.u8()), 0xFF
	case 2:
		raw, ones = uint32(r.u16()), 0xFFFF
	default:
		raw, ones = r.u32(), 0xFFFFFFFF
	}
	if r.err != nil {
		return None
	}
	if raw == ones {
		return None
	}
	if raw > math.MaxInt32 {
		return Index(math.MaxInt32)
	}
	return Index(raw)
}

// count reads a section or list length. minSize is the smallest encoded
// size of one element and bounds the count against the remaining input
// before anything is allocated.
func (r *reader) count(field string, minSize int) int {
	n := r.i32()
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail(&FormatError{Field: field, Reason: "negative count"})
		return 0
	}
	if minSize > 0 && int64(n)*int64(minSize) > int64(r.remaining()) {
		r.fail(&TruncatedDataError{Offset: r.off, Want: int(n) * minSize, Have: r.remaining()})
		return 0
	}
	return int(n)
}

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// text reads a length-prefixed string in the file's encoding.
func (r *reader) text() string {
	n := r.i32()
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail(&FormatError{Field: "string", Reason: "negative length"})
		return ""
	}
	b := r.take(int(n))
	if len(b) == 0 {
		return ""
	}
	if r.enc == UTF8 {
		if !utf8.Valid(b) {
			return string([]rune(string(b)))
		}
		return string(b)
	}
	if len(b)%2 != 0 {
		r.fail(&FormatError{Field: "string", Reason: "odd UTF-16 byte length"})
		return ""
	}
	s, err := utf16Decoder.NewDecoder().Bytes(b)
	if err != nil {
		r.fail(&FormatError{Field: "string", Reason: err.Error()})
		return ""
	}
	return string(s)
}
