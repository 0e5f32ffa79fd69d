package modules

import (
	"github.com/NebulousLabs/errors"
)

// WorkerId identifies a worker within a single master's lifetime. IDs are
// assigned sequentially starting at 0 and are never reused.
type WorkerId int

// NoWorker is returned by placement queries when no worker satisfies the
// request.
const NoWorker WorkerId = -1

// FileId is the lowercase hexadecimal SHA-256 digest of a file's content.
type FileId string

// RendererKind names a renderer implementation registered with a
// RendererAdapter. It is a closed enumeration; callers must not construct
// values outside the declared set.
type RendererKind string

// The renderer kinds this repository implements.
const (
	RendererAOBench RendererKind = "AOBENCH"
	RendererPBRT    RendererKind = "PBRT"
)

// ImageType names an image encoding recognized by the compositor and the
// renderer adapters. It is a closed enumeration.
type ImageType string

// The image types this repository implements.
const (
	ImagePNG  ImageType = "PNG"
	ImageJPEG ImageType = "JPEG"
	ImageEXR  ImageType = "EXR"
)

// Status sentinels. These compose with github.com/NebulousLabs/errors:
// wrap one of these with context via errors.Extend, and test for it with
// errors.Contains.
var (
	// ErrInvalidArgument indicates a malformed or semantically invalid
	// request, such as a zero sum-of-weights Compose or a scratch alias
	// containing a path separator.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a referenced file, worker, or renderer output
	// does not exist or is no longer alive.
	ErrNotFound = errors.New("not found")

	// ErrResourceExhausted indicates no worker is available to accept a
	// job.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrUnimplemented indicates an unrecognized renderer kind or image
	// codec.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrInternal indicates an unexpected failure: codec errors, a
	// subprocess exiting without its declared output, or a geometry
	// mismatch between composited images.
	ErrInternal = errors.New("internal error")

	// ErrDataLoss indicates a content digest mismatch after transfer, or a
	// file directory entry with no holders.
	ErrDataLoss = errors.New("data loss")

	// ErrCancelled indicates a client-initiated cancellation.
	ErrCancelled = errors.New("cancelled")
)

// FileRef names an input file by content ID and the alias under which it
// should appear in a renderer's scratch directory.
type FileRef struct {
	ID    FileId
	Alias string
}

// ImageRef names one input to a Compose call: an already-stored image, its
// integer accumulation weight, and its encoding.
type ImageRef struct {
	ID        FileId
	Weight    int64
	ImageType ImageType
}

// RenderRequest is the client-facing request to render a job.
type RenderRequest struct {
	Renderer RendererKind
	Files    []FileRef
}

// RenderResponse carries the rendered image back to the client.
type RenderResponse struct {
	Image     []byte
	ImageType ImageType
}

// UploadDirectRequest uploads raw content to the cluster without rendering.
type UploadDirectRequest struct {
	Content []byte
}

// UploadResponse reports the content-addressed ID assigned to an upload.
type UploadResponse struct {
	ID FileId
}

// RunRequest asks a worker to materialize a scratch directory from Files and
// invoke Renderer against it.
type RunRequest struct {
	Renderer RendererKind
	Files    []FileRef
}

// RunResponse reports the ID, size, and encoding of a renderer's output.
type RunResponse struct {
	ID        FileId
	FileSize  int64
	ImageType ImageType
}

// ComposeRequest asks a worker to average Images into a single raster of
// ImageType.
type ComposeRequest struct {
	Images    []ImageRef
	ImageType ImageType
}

// ComposeResponse reports the ID and size of a composited image.
type ComposeResponse struct {
	ID       FileId
	FileSize int64
}

// TransferRequest asks a worker to pull ID from SrcAddress and store it
// locally.
type TransferRequest struct {
	ID         FileId
	SrcAddress NetAddress
}

// TransferResponse reports the size of a transferred file.
type TransferResponse struct {
	FileSize int64
}

// PutRequest carries raw content for a worker to store.
type PutRequest struct {
	Content []byte
}

// PutResponse reports the ID and size a Put assigned to its content.
type PutResponse struct {
	ID       FileId
	FileSize int64
}

// GetRequest requests the content of ID from a worker.
type GetRequest struct {
	ID FileId
}

// GetResponse carries one chunk of a Get stream's payload.
type GetResponse struct {
	Content []byte
}

// DeleteRequest asks a worker to remove ID from its store.
type DeleteRequest struct {
	ID FileId
}

// DeleteResponse is the empty acknowledgement of a Delete.
type DeleteResponse struct{}
