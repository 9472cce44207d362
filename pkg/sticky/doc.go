/*
Package sticky routes inbound TCP connections to workers by client address.

When the supervisor owns the public listener, every accepted connection is
hashed on the host part of its remote address (xxhash) and reduced modulo the
current worker count. The connection is then handed to that worker over its
channel. The mapping is a pure function of the address and the pool size, so
a client keeps hitting the same worker across reconnects for as long as the
pool size does not change. Any change of pool size reshuffles all clients.
*/
package sticky
