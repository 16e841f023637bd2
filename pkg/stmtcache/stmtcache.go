// Package stmtcache holds the connection-scoped prepared statement
// cache.
//
// Statement names are derived from the SQL text, never from a
// per-connection counter. Behind a transaction-pooling proxy the
// physical backend a logical session talks to can change between two
// statements; content-derived names mean the same text always maps to
// the same server-side name no matter which logical session prepared it
// first.
package stmtcache

import (
	"fmt"
	"sync"

	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/spaolacci/murmur3"
)

// Definition is what was sent in Parse.
type Definition struct {
	Name          string
	SQL           string
	ParameterOIDs []uint32
}

// Descriptor is what Describe returned for the statement.
type Descriptor struct {
	ParameterOIDs []uint32
	Fields        []proto.FieldDescription
	NoData        bool
}

// Entry pairs a definition with its describe metadata. Entries are
// shared read-only between the cache and in-flight executions.
type Entry struct {
	Def  Definition
	Desc Descriptor
}

// Name derives the server-side statement name for sql.
func Name(sql string) string {
	return fmt.Sprintf("pglink_%x", murmur3.Sum64([]byte(sql)))
}

// Cache maps SQL text (by digest) to prepared statement entries.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
}

func New() *Cache {
	return &Cache{entries: map[uint64]*Entry{}}
}

func (c *Cache) Get(sql string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[murmur3.Sum64([]byte(sql))]
	return e, ok
}

func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[murmur3.Sum64([]byte(e.Def.SQL))] = e
}

// Evict drops the entry for sql, typically after the backend reported
// the name unknown.
func (c *Cache) Evict(sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, murmur3.Sum64([]byte(sql)))
}

// Clear empties the cache. Called when the owning connection fails or
// closes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[uint64]*Entry{}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
