package domain

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Confession is a single message stored on-chain.
type Confession struct {
	// Sender is the account that submitted the confession.
	Sender common.Address

	// Message is the confession text exactly as stored by the contract.
	Message string

	// OccurredAt is the block timestamp recorded by the contract.
	OccurredAt time.Time

	// TxHash and LogIndex locate the event log of a live record. Both are
	// zero for records read from the contract's list.
	TxHash   common.Hash
	LogIndex uint
}

// NewConfession builds a Confession from the raw contract values. The
// timestamp is in seconds since the Unix epoch.
func NewConfession(sender common.Address, message string, timestamp int64) Confession {
	return Confession{
		Sender:     sender,
		Message:    message,
		OccurredAt: time.Unix(timestamp, 0).UTC(),
	}
}

// WithLog returns a copy of c tagged with the log that emitted it.
func (c Confession) WithLog(txHash common.Hash, logIndex uint) Confession {
	c.TxHash = txHash
	c.LogIndex = logIndex
	return c
}

func (c Confession) hasLog() bool {
	return c.TxHash != (common.Hash{})
}

// same reports whether c and other are the same on-chain record. Two live
// records compare by log position, so identical confessions sent in one block
// are both kept. Otherwise, since listed records carry no log position, the
// contract values are compared.
func (c Confession) same(other Confession) bool {
	if c.hasLog() && other.hasLog() {
		return c.TxHash == other.TxHash && c.LogIndex == other.LogIndex
	}
	return c.Sender == other.Sender &&
		c.Message == other.Message &&
		c.OccurredAt.Equal(other.OccurredAt)
}

// Feed is an ordered list of confessions, newest first.
type Feed []Confession

// SortFeed returns the records as a Feed ordered by OccurredAt descending.
// Records with equal timestamps keep their relative order.
func SortFeed(records []Confession) Feed {
	feed := make(Feed, len(records))
	copy(feed, records)
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].OccurredAt.After(feed[j].OccurredAt)
	})
	return feed
}

// Insert places c before the first record that is not newer than it, so an
// event that is newer than everything already shown becomes the first entry.
// Returns false, and the feed unchanged, if the same record is present.
func (f Feed) Insert(c Confession) (Feed, bool) {
	for _, existing := range f {
		if existing.same(c) {
			return f, false
		}
	}

	i := sort.Search(len(f), func(i int) bool {
		return !f[i].OccurredAt.After(c.OccurredAt)
	})

	out := make(Feed, 0, len(f)+1)
	out = append(out, f[:i]...)
	out = append(out, c)
	out = append(out, f[i:]...)
	return out, true
}
