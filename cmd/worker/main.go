// Command worker runs a francine render worker: a WorkerFileStore, a
// RendererAdapter, and a WorkerService bridging the two to the binary rpc
// protocol master and peer workers speak.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lighttransport/francine/build"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/renderer"
	"github.com/lighttransport/francine/rpc"
	"github.com/lighttransport/francine/workerservice"
	"github.com/lighttransport/francine/workerstore"
)

// Exit codes, loosely after sysexits.h.
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

// config collects worker's cobra flags.
type config struct {
	bindAddress    string
	tmpDir         string
	inmemThreshold int64
	logDir         string
	pbrtBinary     string
	pbrtOutputFile string
	upnp           bool

	bandwidthLimit int64 // bytes/sec, 0 disables throttling
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versionString reports the release version, plus the git revision when the
// build system provided one.
func versionString() string {
	if build.GitRevision == "" {
		return build.Version
	}
	return build.Version + "-" + build.GitRevision
}

func main() {
	cfg := config{}

	root := &cobra.Command{
		Use:     "worker",
		Short:   "francine render worker",
		Long:    "worker serves a WorkerFileStore and RendererAdapter over francine's binary RPC protocol.",
		Version: versionString(),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				cmd.UsageFunc()(cmd)
				os.Exit(exitCodeUsage)
			}
			start(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.bindAddress, "workerBindAddress", "0.0.0.0:50052", "address to listen for master/peer RPCs on")
	flags.StringVar(&cfg.tmpDir, "tmpdir", filepath.Join(os.TempDir(), "francine-worker"), "directory for the content store and scratch directories")
	flags.Int64Var(&cfg.inmemThreshold, "inmemoryThreshold", 4<<20, "files at or under this size in bytes are kept in memory instead of spilled to tmpdir")
	flags.StringVar(&cfg.logDir, "logDir", "", "directory for the worker log file (defaults to tmpdir)")
	flags.StringVar(&cfg.pbrtBinary, "pbrt-binary", "pbrt", "path to the pbrt executable")
	flags.StringVar(&cfg.pbrtOutputFile, "pbrt-output", "output.exr", "relative scratch-directory filename pbrt is expected to produce")
	flags.BoolVar(&cfg.upnp, "upnp", false, "attempt to forward workerBindAddress's port via UPnP")
	flags.Int64Var(&cfg.bandwidthLimit, "bandwidthLimit", 0, "cap worker-to-worker transfer throughput in bytes/sec (0 disables throttling)")

	if err := root.Execute(); err != nil {
		die(err)
	}
}

func start(cfg config) {
	if cfg.logDir == "" {
		cfg.logDir = cfg.tmpDir
	}
	if err := os.MkdirAll(cfg.logDir, 0700); err != nil {
		die("could not create log directory:", err)
	}
	if err := os.MkdirAll(cfg.tmpDir, 0700); err != nil {
		die("could not create tmpdir:", err)
	}
	if cfg.bandwidthLimit > 0 {
		const packetSize = 64 << 10
		rpc.SetBandwidthLimit(packetSize, cfg.bandwidthLimit/packetSize+1)
	}

	log, err := persist.NewFileLogger(filepath.Join(cfg.logDir, "worker.log"))
	if err != nil {
		die("could not open log file:", err)
	}
	defer log.Close()

	store := workerstore.NewStore(cfg.tmpDir, cfg.inmemThreshold)
	adapter := renderer.NewAdapter(renderer.Config{
		PBRTBinary:     cfg.pbrtBinary,
		PBRTOutputFile: cfg.pbrtOutputFile,
	})
	svc := workerservice.New(store, adapter, log)

	srv, err := rpc.NewServer(cfg.bindAddress, log)
	if err != nil {
		die("could not bind", cfg.bindAddress, ":", err)
	}
	svc.Register(srv)
	log.Println("INFO: listening on", srv.Address())

	if cfg.upnp {
		go forwardPort(srv.Address(), log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("INFO: shutting down")
	if err := srv.Close(); err != nil {
		log.Printf("WARN: error during shutdown: %v\n", err)
	}
}
