// Package ident generates the opaque, lexicographically sortable identifiers
// used for sessions, messages, parts and permission requests.
//
// Ordering everywhere else in the system is decided by plain string
// comparison of these IDs, so the encoding must guarantee that an ID minted
// later always compares greater than one minted earlier within a process.
// Wall clocks are not trusted beyond the millisecond prefix; a per-process
// counter breaks ties for IDs minted in the same millisecond.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Entity prefixes. The prefix keeps IDs self-describing in logs; it takes no
// part in ordering decisions because IDs are only ever compared within one
// entity kind.
const (
	PrefixSession    = "ses"
	PrefixMessage    = "msg"
	PrefixPart       = "prt"
	PrefixPermission = "per"
)

var (
	mu          sync.Mutex
	lastMillis  int64
	lastCounter uint32
)

// New returns a fresh ID with the given prefix.
//
// Layout: prefix + "_" + 12 hex digits of Unix milliseconds + 4 hex digits of
// a same-millisecond counter + 4 random hex digits. All numeric fields are
// fixed width so lexicographic comparison equals creation order.
func New(prefix string) string {
	now := time.Now().UnixMilli()

	mu.Lock()
	if now < lastMillis {
		// Clock went backwards; keep issuing IDs in the last observed
		// millisecond so ordering never regresses.
		now = lastMillis
	}
	if now == lastMillis {
		lastCounter++
		if lastCounter > 0xffff {
			// Counter exhausted within one millisecond; borrow from the
			// timestamp so the fixed-width encoding never overflows and
			// ordering never regresses.
			lastMillis++
			now = lastMillis
			lastCounter = 0
		}
	} else {
		lastMillis = now
		lastCounter = 0
	}
	counter := lastCounter
	mu.Unlock()

	var entropy [2]byte
	_, _ = rand.Read(entropy[:])

	return fmt.Sprintf("%s_%012x%04x%s", prefix, now, counter, hex.EncodeToString(entropy[:]))
}

// Session returns a new session ID.
func Session() string { return New(PrefixSession) }

// Message returns a new message ID.
func Message() string { return New(PrefixMessage) }

// Part returns a new part ID.
func Part() string { return New(PrefixPart) }

// Permission returns a new permission request ID.
func Permission() string { return New(PrefixPermission) }
