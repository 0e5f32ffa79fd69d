// Package encoding implements the binary wire format the rpc package
// frames its messages with. The format is deliberately small, because it
// only has to describe the request and response envelopes in the modules
// package: booleans are a single 0/1 byte, integers are 8 little-endian
// bytes regardless of width, strings and byte slices are length-prefixed,
// other slices are a length prefix followed by their encoded elements,
// pointers are a presence byte followed by the encoded element, and
// structs are the concatenation of their encoded fields in declaration
// order. There are no type tags: both ends must agree on the shape being
// exchanged, which the shared modules package guarantees.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
)

const (
	// MaxObjectSize caps the total number of bytes a single Decode will
	// consume before giving up.
	MaxObjectSize = 12e6

	// MaxSliceSize caps the decoded size of any one slice, guarding
	// against a corrupt or hostile length prefix requesting an enormous
	// allocation.
	MaxSliceSize = 5e6
)

var errBadPointer = errors.New("cannot decode into invalid pointer")

// ErrObjectTooLarge is returned when a decoded object exceeds
// MaxObjectSize.
type ErrObjectTooLarge uint64

// Error implements the error interface.
func (e ErrObjectTooLarge) Error() string {
	return fmt.Sprintf("encoded object (>= %v bytes) exceeds size limit (%v bytes)", uint64(e), uint64(MaxObjectSize))
}

// ErrSliceTooLarge is returned when a slice's decoded size exceeds
// MaxSliceSize.
type ErrSliceTooLarge struct {
	Len      uint64
	ElemSize uint64
}

// Error implements the error interface.
func (e ErrSliceTooLarge) Error() string {
	return fmt.Sprintf("encoded slice (%v*%v bytes) exceeds size limit (%v bytes)", e.Len, e.ElemSize, uint64(MaxSliceSize))
}

// An Encoder writes the binary encoding of objects to an output stream.
// The first Write error is remembered and reported by Err; all methods
// become no-ops once it is set.
type Encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	if e, ok := w.(*Encoder); ok {
		return e
	}
	return &Encoder{w: w}
}

// Write implements the io.Writer interface.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	var n int
	n, e.err = e.w.Write(p)
	if n != len(p) && e.err == nil {
		e.err = io.ErrShortWrite
	}
	return n, e.err
}

// WriteUint64 writes u as 8 little-endian bytes.
func (e *Encoder) WriteUint64(u uint64) error {
	if e.err != nil {
		return e.err
	}
	binary.LittleEndian.PutUint64(e.buf[:], u)
	e.Write(e.buf[:])
	return e.err
}

// WritePrefixedBytes writes p prefixed by its 8-byte length.
func (e *Encoder) WritePrefixedBytes(p []byte) error {
	e.WriteUint64(uint64(len(p)))
	e.Write(p)
	return e.err
}

func (e *Encoder) writeBool(b bool) error {
	e.buf[0] = 0
	if b {
		e.buf[0] = 1
	}
	e.Write(e.buf[:1])
	return e.err
}

// Err returns the first error encountered by e.
func (e *Encoder) Err() error {
	return e.err
}

// Encode writes the encoding of v to the stream. For the encoding rules,
// see the package docstring.
func (e *Encoder) Encode(v interface{}) error {
	return e.encode(reflect.ValueOf(v))
}

func (e *Encoder) encode(val reflect.Value) error {
	if e.err != nil {
		return e.err
	}
	switch val.Kind() {
	case reflect.Ptr:
		if err := e.writeBool(!val.IsNil()); err != nil {
			return err
		}
		if !val.IsNil() {
			return e.encode(val.Elem())
		}
		return nil
	case reflect.Bool:
		return e.writeBool(val.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.WriteUint64(uint64(val.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.WriteUint64(val.Uint())
	case reflect.String:
		return e.WritePrefixedBytes([]byte(val.String()))
	case reflect.Slice:
		// Slices are variable length; prepend the length and fall through
		// to the array logic.
		if err := e.WriteUint64(uint64(val.Len())); err != nil {
			return err
		}
		if val.Len() == 0 {
			return nil
		}
		fallthrough
	case reflect.Array:
		// Byte slices and arrays are written raw.
		if val.Type().Elem().Kind() == reflect.Uint8 {
			if val.Kind() == reflect.Array {
				if val.CanAddr() {
					val = val.Slice(0, val.Len())
				} else {
					slice := reflect.MakeSlice(reflect.SliceOf(val.Type().Elem()), val.Len(), val.Len())
					reflect.Copy(slice, val)
					val = slice
				}
			}
			_, err := e.Write(val.Bytes())
			return err
		}
		for i := 0; i < val.Len(); i++ {
			if err := e.encode(val.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if err := e.encode(val.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}

	// Encoding should never fail; reaching here means the caller handed
	// the encoder a type the wire format has no representation for, such
	// as a map or an unexported struct field.
	panic("cannot encode type " + val.Type().String())
}

// Marshal returns the encoding of v.
func Marshal(v interface{}) []byte {
	b := new(bytes.Buffer)
	NewEncoder(b).Encode(v) // no error possible when writing to a bytes.Buffer
	return b.Bytes()
}

// A Decoder reads and decodes objects from an input stream, enforcing
// MaxObjectSize and MaxSliceSize as it goes. The first failure is
// remembered; subsequent operations are no-ops.
type Decoder struct {
	r   io.Reader
	buf [8]byte
	err error
	n   int // bytes consumed by the current Decode
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) readFull(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	if err != nil {
		d.err = err
	}
	d.n += n
	if d.n > MaxObjectSize {
		d.err = ErrObjectTooLarge(d.n)
	}
}

func (d *Decoder) nextUint64() uint64 {
	d.readFull(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return DecUint64(d.buf[:])
}

func (d *Decoder) nextBool() bool {
	d.readFull(d.buf[:1])
	if d.buf[0] > 1 && d.err == nil {
		d.err = errors.New("boolean value was not 0 or 1")
	}
	return d.buf[0] == 1
}

// nextPrefix reads a length prefix, failing if the prefix multiplied by
// elemSize exceeds MaxSliceSize.
func (d *Decoder) nextPrefix(elemSize uintptr) uint64 {
	n := d.nextUint64()
	if n > 1<<31-1 || n*uint64(elemSize) > MaxSliceSize {
		d.err = ErrSliceTooLarge{Len: n, ElemSize: uint64(elemSize)}
		return 0
	}
	return n
}

// Err returns the first error encountered by d.
func (d *Decoder) Err() error {
	return d.err
}

// Decode reads the next encoded value from the stream and stores it in v,
// which must be a pointer.
func (d *Decoder) Decode(v interface{}) (err error) {
	pval := reflect.ValueOf(v)
	if pval.Kind() != reflect.Ptr || pval.IsNil() {
		return errBadPointer
	}

	// Decoding panics on malformed input, which lets decode skip boundary
	// checks; the panic is converted back to an error here.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not decode type %s: %v", pval.Elem().Type().String(), r)
		}
	}()

	d.n = 0
	d.decode(pval.Elem())
	return
}

func (d *Decoder) decode(val reflect.Value) {
	switch val.Kind() {
	case reflect.Ptr:
		if !d.nextBool() {
			// nil pointer, nothing to decode
			break
		}
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		d.decode(val.Elem())
	case reflect.Bool:
		val.SetBool(d.nextBool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val.SetInt(int64(d.nextUint64()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val.SetUint(d.nextUint64())
	case reflect.String:
		n := d.nextPrefix(1)
		b := make([]byte, n)
		d.readFull(b)
		val.SetString(string(b))
	case reflect.Slice:
		// Allocate the slice, then fall through to the array logic.
		sliceLen := d.nextPrefix(val.Type().Elem().Size())
		if sliceLen == 0 {
			break
		}
		val.Set(reflect.MakeSlice(val.Type(), int(sliceLen), int(sliceLen)))
		fallthrough
	case reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			d.readFull(val.Slice(0, val.Len()).Bytes())
			break
		}
		for i := 0; i < val.Len(); i++ {
			d.decode(val.Index(i))
		}
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			d.decode(val.Field(i))
		}
	default:
		panic("unknown type")
	}

	if d.err != nil {
		panic(d.err)
	}
}

// Unmarshal decodes b into v, which must be a pointer.
func Unmarshal(b []byte, v interface{}) error {
	return NewDecoder(bytes.NewReader(b)).Decode(v)
}
