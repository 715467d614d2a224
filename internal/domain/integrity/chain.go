// Package integrity computes and verifies the per-innings hash chain.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/okian/crease/internal/domain/model"
)

// Genesis is the previous hash of the first ball in an innings.
var Genesis = strings.Repeat("0", sha256.Size*2)

// Hash returns the hex event hash of a claim for a slot chained to prev.
func Hash(matchID, inningsID string, slot model.Slot, claim model.BallClaim, prev string) string {
	h := sha256.New()
	writeField(h, []byte(matchID))
	writeField(h, []byte(inningsID))
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(slot.OverNumber))
	binary.BigEndian.PutUint32(buf[4:], uint32(slot.BallNumber))
	writeField(h, buf[:])
	writeField(h, claim.Canonical())
	writeField(h, []byte(prev))
	return hex.EncodeToString(h.Sum(nil))
}

// length-prefixed so adjacent fields cannot be shifted into each other.
func writeField(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// HashBall recomputes the hash of a committed ball from its stored fields.
func HashBall(b model.Ball, w *model.Wicket) string {
	return Hash(b.MatchID, b.InningsID, b.Slot(), model.ClaimOf(b, w), b.PrevHash)
}

// Mismatch describes the first point where a chain fails to verify.
type Mismatch struct {
	BallID   string `json:"ball_id"`
	Sequence int64  `json:"sequence_number"`
	Label    string `json:"label"`
	Reason   string `json:"reason"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Report is the outcome of walking a chain.
type Report struct {
	InningsID string    `json:"innings_id"`
	Checked   int       `json:"checked"`
	Valid     bool      `json:"valid"`
	HeadHash  string    `json:"head_hash"`
	Mismatch  *Mismatch `json:"mismatch,omitempty"`
}

// Verify walks balls in sequence order and confirms every link and hash
// before accepting the next. wickets is keyed by wicket id.
func Verify(inningsID string, balls []model.Ball, wickets map[string]model.Wicket) Report {
	r := Report{InningsID: inningsID, Valid: true, HeadHash: Genesis}
	prev := Genesis
	for _, b := range balls {
		if b.PrevHash != prev {
			r.Valid = false
			r.Mismatch = &Mismatch{
				BallID: b.ID, Sequence: b.Sequence, Label: b.Label,
				Reason: "broken link", Expected: prev, Actual: b.PrevHash,
			}
			return r
		}
		var w *model.Wicket
		if b.IsWicket {
			if wk, ok := wickets[b.WicketID]; ok {
				w = &wk
			}
		}
		want := HashBall(b, w)
		if want != b.EventHash {
			r.Valid = false
			r.Mismatch = &Mismatch{
				BallID: b.ID, Sequence: b.Sequence, Label: b.Label,
				Reason: "payload hash mismatch", Expected: want, Actual: b.EventHash,
			}
			return r
		}
		r.Checked++
		prev = b.EventHash
		r.HeadHash = prev
	}
	return r
}
