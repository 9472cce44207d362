package sticky

import (
	"net"

	"github.com/cespare/xxhash/v2"
)

// Host strips the port from a remote address. Addresses without a port are
// returned unchanged.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Hash is the affinity hash of a remote address. Only the host part is
// hashed so reconnects from the same client land on the same worker.
func Hash(addr string) uint64 {
	return xxhash.Sum64String(Host(addr))
}

// Assign maps a remote address to a worker index in [0, n). It returns false
// when the pool is empty.
func Assign(addr string, n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	return int(Hash(addr) % uint64(n)), true
}
