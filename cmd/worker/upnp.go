package main

import (
	"context"
	"strconv"

	upnp "gitlab.com/NebulousLabs/go-upnp"

	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/persist"
)

// forwardPort best-effort forwards port via UPnP IGD, logging and returning
// without error either way: a worker without a forwardable router still
// works for any peer that can already reach it directly.
func forwardPort(addr modules.NetAddress, log *persist.Logger) {
	port := addr.Port()
	portInt, err := strconv.Atoi(port)
	if err != nil {
		log.Printf("WARN: upnp: bind address %q has no numeric port to forward\n", addr)
		return
	}

	d, err := upnp.DiscoverCtx(context.Background())
	if err != nil {
		log.Printf("WARN: upnp: no UPnP-enabled devices found: %v\n", err)
		return
	}
	if err := d.Forward(uint16(portInt), "francine worker"); err != nil {
		log.Printf("WARN: upnp: could not forward port %s: %v\n", port, err)
		return
	}
	log.Println("INFO: upnp: forwarded port", port)
}
