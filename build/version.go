package build

// Version is the current version of francine, reported by the master and
// worker binaries' --version flag.
const Version = "1.0.1"
