package modules

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// NetAddress contains the information needed to contact a peer over TCP.
// It takes the form "host:port", where host can be either an IP address
// or a hostname.
type NetAddress string

// hostnameRegex matches a single DNS label or a sequence of labels
// separated by dots. Labels may contain letters, digits, and hyphens, but
// may not start or end with a hyphen.
var hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9])(\.([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]))*\.?$`)

// Host returns the NetAddress' host.
func (na NetAddress) Host() string {
	host, _, err := net.SplitHostPort(string(na))
	if err != nil {
		return ""
	}
	return host
}

// Port returns the NetAddress' port number.
func (na NetAddress) Port() string {
	_, port, err := net.SplitHostPort(string(na))
	if err != nil {
		return ""
	}
	return port
}

// String returns the NetAddress as a string.
func (na NetAddress) String() string {
	return string(na)
}

// IsLoopback returns true if the NetAddress describes a loopback address
// with a specified port.
func (na NetAddress) IsLoopback() bool {
	host, port, err := net.SplitHostPort(string(na))
	if err != nil {
		return false
	}
	if port == "" {
		return false
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// isValidHostname checks that host is either an IP address other than the
// unspecified address (loopback addresses are accepted), or a well-formed
// DNS hostname with at least two labels
// (single-label hostnames are rejected, with "localhost" as the sole
// exception).
func isValidHostname(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			return errors.New("host is the unspecified address")
		}
		return nil
	}
	if host == "localhost" {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return errors.New("host contains invalid characters or labels")
	}
	trimmed := strings.TrimSuffix(host, ".")
	if len(trimmed) == 0 || len(trimmed) > 253 {
		return errors.New("host is empty or exceeds the maximum hostname length")
	}
	if !strings.Contains(trimmed, ".") {
		return errors.New("unqualified hostnames are not allowed")
	}
	return nil
}

// isValidPort checks that port is a base-10 integer in the range [1,65535].
func isValidPort(port string) error {
	if port == "" || !isDigits(port) {
		return errors.New("port must be numeric")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return err
	}
	if n < 1 || n > 65535 {
		return errors.New("port is out of range")
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsValid returns an error if the NetAddress is invalid. A valid NetAddress
// is of the form "host:port", where host is a well-formed hostname (it is
// not resolved) or a specified IP address, and port is a number in
// [1,65535].
func (na NetAddress) IsValid() error {
	host, port, err := net.SplitHostPort(string(na))
	if err != nil {
		return fmt.Errorf("invalid NetAddress %q: %v", string(na), err)
	}
	if err := isValidHostname(host); err != nil {
		return fmt.Errorf("invalid NetAddress %q: %v", string(na), err)
	}
	if err := isValidPort(port); err != nil {
		return fmt.Errorf("invalid NetAddress %q: %v", string(na), err)
	}
	return nil
}
