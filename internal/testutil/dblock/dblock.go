// Package dblock serialises database-backed tests across packages. go test
// runs packages in parallel processes, so the lock is a loopback TCP listener
// rather than an in-process mutex.
package dblock

import (
	"net"
	"os"
	"sync"
	"time"
)

const defaultLockAddr = "127.0.0.1:45433"

// Acquire blocks until this process owns the lock and returns its release func.
// WALLET_TEST_DB_LOCK_ADDR overrides the listener address.
func Acquire() func() {
	addr := os.Getenv("WALLET_TEST_DB_LOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			var once sync.Once
			return func() { once.Do(func() { _ = ln.Close() }) }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
