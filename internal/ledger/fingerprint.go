package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"maps"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/mmynk/settleup/internal/models"
)

// Fingerprint returns a hex BLAKE2b-256 digest of everything a snapshot is
// derived from: the member set, the display names of the users involved,
// every expense with its shares and every recorded settlement.
//
// Input order of members, expenses and settlements does not matter. Share
// order within an expense does.
func Fingerprint(members []string, users map[string]*models.User, expenses []*models.Expense, settlements []*models.Settlement) string {
	h, _ := blake2b.New256(nil) // nil key never errors
	w := fingerprintWriter{h: h}

	sorted := slices.Clone(members)
	slices.Sort(sorted)
	w.str("members")
	w.int(int64(len(sorted)))
	for _, m := range sorted {
		w.str(m)
	}

	userIDs := slices.Sorted(maps.Keys(users))
	w.str("names")
	w.int(int64(len(userIDs)))
	for _, id := range userIDs {
		w.str(id)
		w.str(users[id].Name)
	}

	es := slices.Clone(expenses)
	slices.SortFunc(es, func(a, b *models.Expense) int { return strings.Compare(a.ID, b.ID) })
	w.str("expenses")
	w.int(int64(len(es)))
	for _, e := range es {
		w.str(e.ID)
		w.int(e.Amount.Int64())
		w.shares(e.Payers)
		w.shares(e.Participants)
	}

	ss := slices.Clone(settlements)
	slices.SortFunc(ss, func(a, b *models.Settlement) int { return strings.Compare(a.ID, b.ID) })
	w.str("settlements")
	w.int(int64(len(ss)))
	for _, s := range ss {
		w.str(s.ID)
		w.str(s.FromUserID)
		w.str(s.ToUserID)
		w.int(s.Amount.Int64())
	}

	return hex.EncodeToString(h.Sum(nil))
}

// fingerprintWriter writes length-prefixed fields so distinct inputs never
// encode to the same byte stream.
type fingerprintWriter struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func (w *fingerprintWriter) int(v int64) {
	n := binary.PutVarint(w.buf[:], v)
	w.h.Write(w.buf[:n])
}

func (w *fingerprintWriter) str(s string) {
	w.int(int64(len(s)))
	w.h.Write([]byte(s))
}

func (w *fingerprintWriter) shares(shares []models.Share) {
	w.int(int64(len(shares)))
	for _, s := range shares {
		w.str(s.User.ID())
		w.int(s.Amount.Int64())
	}
}
