// Package refgen produces human-readable references for orders and
// donation receipts, e.g. ORD_LXK2M9QF_A3F8B2.
package refgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const randDigits = 6

var fallbackCounter uint64

// Generate returns a reference of the form PREFIX_<time36>_<rand36>,
// uppercased. It never fails: when the randomness source is unavailable
// it degrades to a time + counter composition that is still unique
// within the process.
func Generate(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		n := atomic.AddUint64(&fallbackCounter, 1)
		return strings.ToUpper(fmt.Sprintf("%s_%s_%s", prefix, ts, strconv.FormatUint(n, 36)))
	}

	r := strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 36)
	if len(r) > randDigits {
		r = r[:randDigits]
	}
	return strings.ToUpper(fmt.Sprintf("%s_%s_%s", prefix, ts, r))
}
