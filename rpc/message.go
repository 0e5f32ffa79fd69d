package rpc

import (
	"io"
	"net"

	"github.com/lighttransport/francine/encoding"
)

// maxControlMsgLen bounds a single request/response envelope. Bulk content
// (Put/Get/Run payloads) is never carried in the envelope itself; it is
// streamed separately as chunks (see WriteChunks/ReadChunks), so this only
// needs to be large enough for the largest FileRef/ImageRef list a request
// carries.
const maxControlMsgLen = 4 << 20

// WriteRequest marshals req and writes it to conn as the request envelope a
// Handler reads first.
func WriteRequest(conn net.Conn, req interface{}) error {
	return encoding.WriteObject(conn, req)
}

// ReadRequest reads the request envelope a Call writes and decodes it into
// req, which must be a pointer.
func ReadRequest(conn net.Conn, req interface{}) error {
	return encoding.ReadObject(conn, req, maxControlMsgLen)
}

// WriteStatus writes the one-byte status derived from err, followed by its
// message when err is non-nil. Handlers that stream their own response body
// (Get) call this directly instead of WriteResponse, then stream the body
// themselves only if err is nil.
func WriteStatus(conn net.Conn, err error) error {
	s := statusFromError(err)
	if _, werr := conn.Write([]byte{byte(s)}); werr != nil {
		return werr
	}
	if s == statusOK {
		return nil
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return encoding.WriteObject(conn, msg)
}

// ReadStatus reads the status byte WriteStatus wrote. A nil return means
// statusOK; otherwise it is the sentinel error extended with the server's
// message.
func ReadStatus(conn net.Conn) error {
	var sb [1]byte
	if _, err := io.ReadFull(conn, sb[:]); err != nil {
		return err
	}
	s := status(sb[0])
	if s == statusOK {
		return nil
	}
	var msg string
	if err := encoding.ReadObject(conn, &msg, maxControlMsgLen); err != nil {
		return err
	}
	return errorFromStatus(s, msg)
}

// WriteResponse writes the one-byte status derived from err, its message (if
// any), and, if err is nil, the marshalled resp. Every Handler that returns a
// single, non-streamed response must call this exactly once to terminate its
// side of the exchange; Server does not write a status itself.
func WriteResponse(conn net.Conn, resp interface{}, err error) error {
	if werr := WriteStatus(conn, err); werr != nil || err != nil {
		return werr
	}
	return encoding.WriteObject(conn, resp)
}

// ReadResponse reads the status byte a WriteResponse wrote. If the status is
// not OK, it returns the corresponding sentinel error and does not touch
// resp. Otherwise it decodes the response envelope into resp, which must be
// a pointer.
func ReadResponse(conn net.Conn, resp interface{}) error {
	if err := ReadStatus(conn); err != nil {
		return err
	}
	return encoding.ReadObject(conn, resp, maxControlMsgLen)
}

// WriteChunks streams all of r to conn as a sequence of length-prefixed
// chunks, for use by Handlers and callers that exchange bulk file content
// (Put, Get, Run's renderer output).
func WriteChunks(w io.Writer, r io.Reader) error {
	return writeChunks(w, r)
}

// ReadChunks reads a sequence of chunks written by WriteChunks and returns
// their concatenation.
func ReadChunks(r io.Reader) ([]byte, error) {
	return readChunks(r)
}
