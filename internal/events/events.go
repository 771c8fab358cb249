// Package events journals the blocks an agent sends and receives, per
// account, so callers can see what happened even when the node did not
// confirm a submission.
package events

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/vite-agent/internal/storage"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Kind is what the account did.
type Kind string

// Event kinds.
const (
	KindSend    Kind = "send"
	KindReceive Kind = "receive"
)

// Status is how the node answered.
type Status string

// Event statuses.
const (
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusAmbiguous Status = "ambiguous"
	StatusNotSent   Status = "not_sent"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 100

var (
	keyEvents = []byte("ev/")
	keyMeta   = []byte("meta/")
	keySeq    = []byte("seq")
)

// Event is one journal entry.
type Event struct {
	Seq          uint64        `json:"seq"`
	Kind         Kind          `json:"kind"`
	Status       Status        `json:"status"`
	Address      types.Address `json:"address"`
	Counterparty types.Address `json:"counterparty"`
	TokenID      types.TokenID `json:"tokenId"`
	Amount       types.Amount  `json:"amount"`
	Hash         types.Hash    `json:"hash"`
	Height       uint64        `json:"height"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}

// FromBlock builds an event for a signed block. err is the submission error,
// if any.
func FromBlock(b *block.AccountBlock, status Status, err error) *Event {
	ev := &Event{
		Status:  status,
		Address: b.Address,
		TokenID: b.TokenID,
		Amount:  b.Amount,
		Hash:    b.Hash,
		Height:  b.Height,
	}
	if b.IsSend() {
		ev.Kind, ev.Counterparty = KindSend, b.ToAddress
	} else {
		ev.Kind, ev.Counterparty = KindReceive, b.FromAddress
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Store is an append-only journal over a storage.DB. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	root   *storage.PrefixDB
	events *storage.PrefixDB
	meta   *storage.PrefixDB
	seq    uint64
	now    func() time.Time
}

// NewStore opens the journal kept in db.
func NewStore(db storage.DB) (*Store, error) {
	s := &Store{
		root:   storage.NewPrefixDB(db, nil),
		events: storage.NewPrefixDB(db, keyEvents),
		meta:   storage.NewPrefixDB(db, keyMeta),
		now:    time.Now,
	}
	raw, err := s.meta.Get(keySeq)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("read journal sequence: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("journal sequence is %d bytes", len(raw))
	default:
		s.seq = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

// Append assigns ev the next sequence number and stores it.
func (s *Store) Append(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Seq = s.seq + 1
	if ev.Time.IsZero() {
		ev.Time = s.now().UTC()
	}
	val, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], ev.Seq)

	// Entry and counter commit together.
	b := s.root.NewBatch()
	if err := b.Put(append(append([]byte{}, keyEvents...), eventKey(ev.Address, ev.Seq)...), val); err != nil {
		return err
	}
	if err := b.Put(append(append([]byte{}, keyMeta...), keySeq...), seq[:]); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	s.seq = ev.Seq
	return nil
}

// List returns up to limit of addr's events, newest first. limit <= 0 means
// DefaultLimit.
func (s *Store) List(addr types.Address, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var all []Event
	err := s.events.ForEach(addr[:], func(_, value []byte) error {
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		all = append(all, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Len returns the number of events ever appended.
func (s *Store) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// eventKey orders an address's events by sequence: address(21) || seq(8).
func eventKey(addr types.Address, seq uint64) []byte {
	k := make([]byte, types.AddressSize+8)
	copy(k, addr[:])
	binary.BigEndian.PutUint64(k[types.AddressSize:], seq)
	return k
}
