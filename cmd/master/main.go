// Command master runs a francine master: the NodeDirectory, FileDirectory,
// Dispatcher, a background eviction loop, and the HTTP+JSON client-facing
// API serving Render and UploadDirect.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lighttransport/francine/build"
	"github.com/lighttransport/francine/dispatcher"
	"github.com/lighttransport/francine/dispatcher/api"
	"github.com/lighttransport/francine/eviction"
	"github.com/lighttransport/francine/filedirectory"
	"github.com/lighttransport/francine/nodedirectory"
	"github.com/lighttransport/francine/persist"
	"github.com/lighttransport/francine/rpc"
)

const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

// config collects master's cobra flags.
type config struct {
	bindAddress string
	workersList string
	logDir      string

	defaultTtl       time.Duration
	renderTimeout    time.Duration
	uploadTimeout    time.Duration
	evictionInterval time.Duration
	bandwidthLimit   int64 // bytes/sec, 0 disables throttling of master<->worker RPCs
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
		Use:     "master",
		Short:   "francine render master",
		Long:    "master dispatches render jobs across a fleet of francine workers.",
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
	flags.StringVar(&cfg.bindAddress, "masterBindAddress", "0.0.0.0:50051", "address for the client-facing HTTP API")
	flags.StringVar(&cfg.workersList, "workersList", "", "comma-separated host:port list of worker RPC addresses")
	flags.StringVar(&cfg.logDir, "logDir", filepath.Join(os.TempDir(), "francine-master-log"), "directory for the master log file")
	flags.DurationVar(&cfg.defaultTtl, "defaultTtl", time.Hour, "default lifetime assigned to a newly registered file")
	flags.DurationVar(&cfg.renderTimeout, "runTimeout", 5*time.Minute, "deadline applied to a Render call carrying no client deadline")
	flags.DurationVar(&cfg.uploadTimeout, "transferTimeout", time.Minute, "deadline applied to an UploadDirect call carrying no client deadline")
	flags.DurationVar(&cfg.evictionInterval, "evictionInterval", time.Minute, "interval between eviction cycles")
	flags.Int64Var(&cfg.bandwidthLimit, "bandwidthLimit", 0, "cap master<->worker RPC throughput in bytes/sec (0 disables throttling)")

	if err := root.Execute(); err != nil {
		die(err)
	}
}

func start(cfg config) {
	if err := os.MkdirAll(cfg.logDir, 0700); err != nil {
		die("could not create log directory:", err)
	}
	if cfg.bandwidthLimit > 0 {
		const packetSize = 64 << 10
		rpc.SetBandwidthLimit(packetSize, cfg.bandwidthLimit/packetSize+1)
	}

	log, err := persist.NewFileLogger(filepath.Join(cfg.logDir, "master.log"))
	if err != nil {
		die("could not open log file:", err)
	}
	defer log.Close()

	nodes := nodedirectory.New()
	if ids := nodes.AddWorkersFromString(cfg.workersList); len(ids) == 0 {
		log.Println("WARN: no workers registered at startup; waiting for workersList to be non-empty is not supported, restart with --workersList set")
	}

	files := filedirectory.New(cfg.defaultTtl)

	evictLoop := eviction.New(files, nodes, cfg.evictionInterval, log)
	evictLoop.Start()
	defer evictLoop.Close()

	d := dispatcher.New(nodes, files, log)
	apiSrv := api.New(d, cfg.renderTimeout, cfg.uploadTimeout, log)

	httpSrv := &http.Server{
		Addr:              cfg.bindAddress,
		Handler:           apiSrv,
		ReadTimeout:       5 * time.Minute,
		ReadHeaderTimeout: 2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("INFO: listening on", cfg.bindAddress)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			die("HTTP server failed:", err)
		}
	case <-sigCh:
		log.Println("INFO: shutting down")
		if err := httpSrv.Close(); err != nil {
			log.Printf("WARN: error during shutdown: %v\n", err)
		}
	}
}
