// Package renderer implements the RendererAdapter: a pure function from
// (renderer kind, scratch directory, job inputs) to an encoded image placed
// back into a worker's blob store.
package renderer

import (
	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/workerstore"
)

// Config holds the worker-level settings the adapters need: where to find
// the external PBRT binary and what filename it is expected to write its
// output to, inside the scratch directory it is given.
type Config struct {
	PBRTBinary     string
	PBRTOutputFile string
}

// DefaultConfig returns the configuration used when a worker is not given
// explicit renderer flags.
func DefaultConfig() Config {
	return Config{
		PBRTBinary:     "pbrt",
		PBRTOutputFile: "output.exr",
	}
}

// renderFunc is the shape every registered renderer kind implements: given
// a scratch directory already populated with the job's input files (via
// Store.CreateScratchDir), produce an image and register it in store.
type renderFunc func(cfg Config, store *workerstore.Store, scratchDir string, files []modules.FileRef) (modules.FileId, int64, modules.ImageType, error)

// Adapter is a sealed registry of renderer kinds. Adding a new kind means
// adding an entry here and its implementation, never touching the
// dispatcher or WorkerService.
type Adapter struct {
	cfg      Config
	registry map[modules.RendererKind]renderFunc
}

// NewAdapter returns an Adapter with the built-in AOBENCH and PBRT kinds
// registered.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		registry: map[modules.RendererKind]renderFunc{
			modules.RendererAOBench: renderAOBench,
			modules.RendererPBRT:    renderPBRT,
		},
	}
}

// Render materializes a scratch directory from files, invokes the adapter
// registered for kind, and cleans up the scratch directory afterward. An
// unrecognized kind returns modules.ErrUnimplemented.
func (a *Adapter) Render(kind modules.RendererKind, files []modules.FileRef, store *workerstore.Store) (modules.FileId, int64, modules.ImageType, error) {
	fn, ok := a.registry[kind]
	if !ok {
		return "", 0, "", errors.Extend(modules.ErrUnimplemented, errors.New(string(kind)))
	}

	scratchDir, err := store.CreateScratchDir(files)
	if err != nil {
		return "", 0, "", err
	}
	defer store.RemoveScratchDir(scratchDir)

	return fn(a.cfg, store, scratchDir, files)
}
