package renderer

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/workerstore"
)

// sceneAlias picks the input file that names the scene to render: the first
// alias ending in ".pbrt". PBRT's own scene-description references (ply
// meshes, textures, includes) are expected to travel alongside it as the
// other entries in files, satisfied by the scratch dir's symlinks.
func sceneAlias(files []modules.FileRef) (string, error) {
	for _, f := range files {
		if strings.HasSuffix(f.Alias, ".pbrt") {
			return f.Alias, nil
		}
	}
	return "", errors.Extend(modules.ErrInvalidArgument, errors.New("no input file with a .pbrt alias"))
}

// renderPBRT implements the PBRT renderer kind: it launches cfg.PBRTBinary
// with its working directory set to scratchDir (never os.Chdir, so
// concurrent Runs on one worker never race on the process-wide current
// directory), and expects the binary to write cfg.PBRTOutputFile relative
// to that directory.
func renderPBRT(cfg Config, store *workerstore.Store, scratchDir string, files []modules.FileRef) (modules.FileId, int64, modules.ImageType, error) {
	scene, err := sceneAlias(files)
	if err != nil {
		return "", 0, "", err
	}

	cmd := exec.Command(cfg.PBRTBinary, "--outfile", cfg.PBRTOutputFile, scene)
	cmd.Dir = scratchDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	if err := cmd.Run(); err != nil {
		return "", 0, "", wrapInternal(errors.New(cfg.PBRTBinary + ": " + err.Error() + ": " + stderr.String()))
	}

	id, size, err := store.Retain(scratchDir, cfg.PBRTOutputFile)
	if err != nil {
		return "", 0, "", wrapInternal(errors.New("pbrt exited successfully but did not produce " + cfg.PBRTOutputFile))
	}
	return id, size, modules.ImageEXR, nil
}
