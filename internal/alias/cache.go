package alias

import "sync"

// Cache maps pubkey hex to alias. Entries are never evicted.
type Cache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewCache() *Cache {
	return &Cache{m: map[string]string{}}
}

func (c *Cache) Get(pubkey string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[pubkey]
	return v, ok
}

func (c *Cache) Put(pubkey, alias string) {
	c.mu.Lock()
	c.m[pubkey] = alias
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
