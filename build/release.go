package build

// Release identifies which build configuration this binary was compiled
// with. Critical prints its message and stack trace only when Release is
// not "testing"; override it at build time via -ldflags, e.g.
// -X github.com/lighttransport/francine/build.Release=testing.
var Release = "standard"

// DEBUG toggles panics on Critical. Like Release, it is meant to be
// overridden at build time for development builds.
var DEBUG = false
