package rpc

import (
	"io"

	"github.com/lighttransport/francine/encoding"
)

// chunkSize is the block size used when streaming Put and Get content, so
// that no single wire message exceeds it; readChunks still collects the
// whole payload in memory.
const chunkSize = 64 * 1024

// maxChunkMsgLen bounds a single length-prefixed chunk message, guarding
// against a corrupt or hostile length prefix requesting an enormous
// allocation.
const maxChunkMsgLen = chunkSize + 4096

// writeChunks writes all of r to w as a sequence of length-prefixed chunks
// of at most chunkSize bytes, terminated by a single zero-length chunk.
func writeChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := encoding.WriteObject(w, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return encoding.WriteObject(w, []byte{})
		}
		if err != nil {
			return err
		}
	}
}

// readChunks reads a sequence of length-prefixed chunks from r, as written
// by writeChunks, and returns their concatenation.
func readChunks(r io.Reader) ([]byte, error) {
	var result []byte
	for {
		var chunk []byte
		if err := encoding.ReadObject(r, &chunk, maxChunkMsgLen); err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return result, nil
		}
		result = append(result, chunk...)
	}
}
