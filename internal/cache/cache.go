// Package cache provides a bounded, expiring response cache for read
// endpoints. A record is reachable under three keys (id, proof timestamp,
// file hash); mutations purge all three plus every cached list page.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"por-go/internal/por"
)

// ResponseCache is an LRU with a hard entry cap and per-entry TTL. Records
// and list pages share the capacity.
type ResponseCache struct {
	lru *expirable.LRU[string, any]
}

// NewResponseCache creates a cache holding at most maxEntries values, each
// expiring ttl after insertion.
func NewResponseCache(maxEntries int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		lru: expirable.NewLRU[string, any](maxEntries, nil, ttl),
	}
}

var _ por.ResponseCache = (*ResponseCache)(nil)

func (c *ResponseCache) GetRecord(q por.RecordQuery) (*por.VerificationRecord, bool) {
	v, ok := c.lru.Get(recordKey(q))
	if !ok {
		return nil, false
	}
	rec, ok := v.(*por.VerificationRecord)
	return rec, ok
}

func (c *ResponseCache) PutRecord(q por.RecordQuery, rec *por.VerificationRecord) {
	c.lru.Add(recordKey(q), rec)
}

func (c *ResponseCache) GetList(page, pageSize int) (*por.RecordPage, bool) {
	v, ok := c.lru.Get(listKey(page, pageSize))
	if !ok {
		return nil, false
	}
	p, ok := v.(*por.RecordPage)
	return p, ok
}

func (c *ResponseCache) PutList(page, pageSize int, p *por.RecordPage) {
	c.lru.Add(listKey(page, pageSize), p)
}

// Invalidate removes every key under which the record may be cached.
func (c *ResponseCache) Invalidate(rec *por.VerificationRecord) {
	if rec == nil {
		return
	}
	c.lru.Remove(recordKey(por.RecordQuery{ID: rec.ID}))
	c.lru.Remove(recordKey(por.RecordQuery{ProofTimestamp: rec.ProofTimestamp}))
	c.lru.Remove(recordKey(por.RecordQuery{FileHash: rec.FileHash}))
}

// InvalidateLists removes all cached list pages.
func (c *ResponseCache) InvalidateLists() {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, "list:") {
			c.lru.Remove(key)
		}
	}
}

// Len returns the number of live entries.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}

func recordKey(q por.RecordQuery) string {
	q = q.Canonical()
	switch {
	case q.ID > 0:
		return fmt.Sprintf("id:%d", q.ID)
	case q.ProofTimestamp > 0:
		return fmt.Sprintf("timestamp:%d", q.ProofTimestamp)
	default:
		return fmt.Sprintf("hash:%s", q.FileHash)
	}
}

func listKey(page, pageSize int) string {
	page, pageSize = por.ClampPage(page, pageSize)
	return fmt.Sprintf("list:%d:%d", page, pageSize)
}
