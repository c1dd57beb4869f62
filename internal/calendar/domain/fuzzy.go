package domain

import (
	"encoding/binary"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// fuzzyHasher accumulates the normalized fields of an item. Collisions
// between distinct items are accepted; the hash only proposes duplicates.
type fuzzyHasher struct {
	d *xxhash.Digest
}

func newFuzzyHasher() fuzzyHasher {
	return fuzzyHasher{d: xxhash.New()}
}

func (h fuzzyHasher) text(s string) {
	_, _ = h.d.WriteString(strings.ToLower(strings.Join(strings.Fields(s), " ")))
	_, _ = h.d.Write([]byte{0})
}

func (h fuzzyHasher) number(n int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	_, _ = h.d.Write(buf[:])
}

func (h fuzzyHasher) instant(t time.Time) {
	h.number(t.Unix())
}

func (h fuzzyHasher) participants(ps []Participant) {
	keys := make([]string, 0, len(ps))
	for _, p := range ps {
		key := strings.ToLower(strings.TrimSpace(p.Email))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(p.Name))
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, k := range keys {
		h.text(k)
	}
}

func (h fuzzyHasher) sum() int64 {
	return int64(h.d.Sum64())
}

// itemFuzzyHash hashes the fields that identify a single event or reminder.
func itemFuzzyHash(kind ItemKind, title string, start, end time.Time, participants []Participant) int64 {
	h := newFuzzyHasher()
	h.number(int64(kind))
	h.text(title)
	h.instant(start)
	h.instant(end)
	h.participants(participants)
	return h.sum()
}
