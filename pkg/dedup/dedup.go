// Package dedup drops repeated MQTT deliveries within a time window.
package dedup

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	id  string
	exp time.Time
}

type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	// entries in insertion order; with a fixed ttl that is expiry order
	order *list.List
	now   func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{
		ttl:   ttl,
		max:   max,
		seen:  make(map[string]time.Time, max),
		order: list.New(),
		now:   time.Now,
	}
}

// ShouldProcess reports whether id is new within the TTL and records it.
// An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	exp := now.Add(d.ttl)
	d.seen[id] = exp
	d.order.PushBack(entry{id: id, exp: exp})
	d.evict(now)
	return true
}

// ShouldProcessMessage keys on the SHA-256 of topic and payload. QoS1
// redeliveries repeat both, while equal readings from different probes
// arrive on different topics.
func (d *Deduper) ShouldProcessMessage(topic string, payload []byte) bool {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write(payload)
	return d.ShouldProcess(hex.EncodeToString(h.Sum(nil)))
}

// Len is the number of tracked ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evict pops from the front of the order list while the front is expired,
// superseded by a later insert of the same id, or the map is over max.
// Every entry is pushed once and popped once.
func (d *Deduper) evict(now time.Time) {
	for e := d.order.Front(); e != nil; e = d.order.Front() {
		ent := e.Value.(entry)
		exp, ok := d.seen[ent.id]
		switch {
		case !ok || !exp.Equal(ent.exp):
			// superseded
		case now.After(ent.exp), len(d.seen) > d.max:
			delete(d.seen, ent.id)
		default:
			return
		}
		d.order.Remove(e)
	}
}
