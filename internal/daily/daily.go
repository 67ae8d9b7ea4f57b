package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/robalobadob/numguess/internal/game"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Shuffler returns a deterministic game.Shuffler for a date and digit count.
// The permutation is a Fisher–Yates shuffle driven by HMAC(salt, "YYYY-MM-DD|digits"),
// so every player gets the same secret for the same day and length.
func Shuffler(date time.Time, salt string, digits int) game.Shuffler {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date) + "|" + strconv.Itoa(digits)))
	sum := h.Sum(nil)

	return func(d []byte) {
		// 9 swaps for ten digits; two bytes of the 32-byte sum per swap
		for i, k := len(d)-1, 0; i > 0; i, k = i-1, k+2 {
			n := binary.BigEndian.Uint16(sum[k%len(sum):])
			j := int(n) % (i + 1)
			d[i], d[j] = d[j], d[i]
		}
	}
}
