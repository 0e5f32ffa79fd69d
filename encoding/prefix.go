package encoding

import (
	"fmt"
	"io"
)

// ReadPrefixedBytes reads an 8-byte length prefix followed by that many
// bytes. The read is aborted if the prefix exceeds maxLen.
func ReadPrefixedBytes(r io.Reader, maxLen uint64) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := DecUint64(lenBuf[:])
	if n > maxLen {
		return nil, fmt.Errorf("length %d exceeds maxLen of %d", n, maxLen)
	}
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WritePrefixedBytes writes data to w prefixed by its 8-byte length.
func WritePrefixedBytes(w io.Writer, data []byte) error {
	return NewEncoder(w).WritePrefixedBytes(data)
}

// ReadObject reads a length-prefixed, marshalled object from r into obj,
// which must be a pointer. The read is aborted if the encoded object exceeds
// maxLen.
func ReadObject(r io.Reader, obj interface{}, maxLen uint64) error {
	data, err := ReadPrefixedBytes(r, maxLen)
	if err != nil {
		return err
	}
	return Unmarshal(data, obj)
}

// WriteObject marshals obj and writes it to w prefixed by its 8-byte length.
func WriteObject(w io.Writer, obj interface{}) error {
	return WritePrefixedBytes(w, Marshal(obj))
}
