// Package api exposes a Dispatcher's Render and UploadDirect operations
// over HTTP+JSON: httprouter.Handle-style handlers, one api.Error{Message}
// JSON body on failure.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/julienschmidt/httprouter"

	"github.com/lighttransport/francine/dispatcher"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/persist"
)

// Error is the JSON body returned on any non-2xx response. Message always
// contains the underlying sentinel's text somewhere in its string so a
// programmatic client can match on it.
type Error struct {
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Message }

// WriteError writes err as a JSON Error body with the HTTP status statusFor
// maps it to.
func WriteError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Error{Message: err.Error()})
}

// WriteJSON writes v as a 200 OK JSON body.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a modules sentinel error to an HTTP status. Errors not
// extending any recognized sentinel are treated as ErrInternal.
func statusFor(err error) int {
	switch {
	case errors.Contains(err, modules.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Contains(err, modules.ErrNotFound):
		return http.StatusNotFound
	case errors.Contains(err, modules.ErrResourceExhausted):
		return http.StatusTooManyRequests
	case errors.Contains(err, modules.ErrUnimplemented):
		return http.StatusNotImplemented
	case errors.Contains(err, modules.ErrDataLoss):
		return http.StatusInternalServerError
	case errors.Contains(err, modules.ErrCancelled):
		return 499 // client closed request, nginx convention; no stdlib constant
	default:
		return http.StatusInternalServerError
	}
}

// renderRequestBody is the wire shape of POST /render: FileRef.ID is
// carried as a plain string and Content is never inlined — a client submits
// a render job referencing files already known to the cluster by ID.
type renderRequestBody struct {
	Renderer string `json:"renderer"`
	Files    []struct {
		ID    string `json:"id"`
		Alias string `json:"alias"`
	} `json:"files"`
}

type renderResponseBody struct {
	Image     string `json:"image"` // base64
	ImageType string `json:"imageType"`
}

type uploadRequestBody struct {
	Content string `json:"content"` // base64
}

type uploadResponseBody struct {
	ID string `json:"id"`
}

// Server wraps a Dispatcher with an httprouter-based HTTP handler and
// per-request deadline defaults (renderTimeout bounds a whole Render call,
// uploadTimeout bounds an upload), applied only when the request carries
// no deadline of its own.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	log        *persist.Logger

	renderTimeout time.Duration
	uploadTimeout time.Duration

	handler http.Handler
}

// New returns a Server exposing d over HTTP, falling back to renderTimeout
// and uploadTimeout when a request's context carries no deadline.
func New(d *dispatcher.Dispatcher, renderTimeout, uploadTimeout time.Duration, log *persist.Logger) *Server {
	s := &Server{dispatcher: d, log: log, renderTimeout: renderTimeout, uploadTimeout: uploadTimeout}

	router := httprouter.New()
	router.POST("/render", s.handleRender)
	router.POST("/upload", s.handleUpload)
	s.handler = router
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body renderRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, errors.Extend(modules.ErrInvalidArgument, err))
		return
	}

	files := make([]modules.FileRef, len(body.Files))
	for i, f := range body.Files {
		files[i] = modules.FileRef{ID: modules.FileId(f.ID), Alias: f.Alias}
	}
	req := modules.RenderRequest{Renderer: modules.RendererKind(body.Renderer), Files: files}

	ctx, cancel := s.withDeadline(r, s.renderTimeout)
	defer cancel()

	resp, err := s.dispatcher.Render(ctx, req)
	if err != nil {
		s.log.Printf("WARN: api: Render failed: %v\n", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, renderResponseBody{
		Image:     base64.StdEncoding.EncodeToString(resp.Image),
		ImageType: string(resp.ImageType),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body uploadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, errors.Extend(modules.ErrInvalidArgument, err))
		return
	}
	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		WriteError(w, errors.Extend(modules.ErrInvalidArgument, err))
		return
	}

	ctx, cancel := s.withDeadline(r, s.uploadTimeout)
	defer cancel()

	resp, err := s.dispatcher.UploadDirect(ctx, modules.UploadDirectRequest{Content: content})
	if err != nil {
		s.log.Printf("WARN: api: UploadDirect failed: %v\n", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, uploadResponseBody{ID: string(resp.ID)})
}

// withDeadline returns a context bounded by fallback unless r's own context
// already carries a deadline, in which case that deadline wins.
func (s *Server) withDeadline(r *http.Request, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := r.Context().Deadline(); ok {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), fallback)
}
