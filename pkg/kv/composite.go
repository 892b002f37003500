package kv

// Composite is an N-tier cache composing any number of Stores, ordered
// fastest to most durable. Reads check tiers in order and back-fill the
// faster tiers on a hit; writes go to every tier; Cas delegates to the
// last (authoritative) tier and only propagates to the caches on success.
type Composite struct {
	tiers []Store
}

// NewComposite builds a Composite over tiers, ordered fastest -> most
// durable. It panics if tiers is empty: a cache with nothing behind it
// is a programmer error, not a runtime condition to recover from.
func NewComposite(tiers ...Store) *Composite {
	if len(tiers) == 0 {
		panic("kv: Composite requires at least one tier")
	}
	return &Composite{tiers: tiers}
}

// Get checks tiers in order, populating every faster tier on a hit.
func (c *Composite) Get(key string) ([]byte, bool) {
	for i, tier := range c.tiers {
		if value, ok := tier.Get(key); ok {
			for j := 0; j < i; j++ {
				c.tiers[j].Set(key, value)
			}
			return value, true
		}
	}
	return nil, false
}

// GetMany checks tiers in order for the keys still outstanding, back-filling
// faster tiers with whatever each tier resolves.
func (c *Composite) GetMany(keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	remaining := make(map[string]bool, len(keys))
	for _, k := range keys {
		remaining[k] = true
	}

	for i, tier := range c.tiers {
		if len(remaining) == 0 {
			break
		}
		pending := make([]string, 0, len(remaining))
		for k := range remaining {
			pending = append(pending, k)
		}
		tierValues := tier.GetMany(pending)
		if len(tierValues) > 0 {
			for j := 0; j < i; j++ {
				c.tiers[j].SetMany(tierValues)
			}
		}
		for k, v := range tierValues {
			result[k] = v
			delete(remaining, k)
		}
	}
	return result
}

// Set writes value to every tier, most durable first so a reader racing
// the fan-out never sees a cache hit with no backing durable copy.
func (c *Composite) Set(key string, value []byte) error {
	last := len(c.tiers) - 1
	if err := c.tiers[last].Set(key, value); err != nil {
		return err
	}
	for i := 0; i < last; i++ {
		c.tiers[i].Set(key, value)
	}
	return nil
}

// SetMany writes every entry to every tier, most durable first.
func (c *Composite) SetMany(kvs map[string][]byte) error {
	last := len(c.tiers) - 1
	if err := c.tiers[last].SetMany(kvs); err != nil {
		return err
	}
	for i := 0; i < last; i++ {
		c.tiers[i].SetMany(kvs)
	}
	return nil
}

// Remove deletes key from every tier.
func (c *Composite) Remove(key string) error {
	last := len(c.tiers) - 1
	if err := c.tiers[last].Remove(key); err != nil {
		return err
	}
	for i := 0; i < last; i++ {
		c.tiers[i].Remove(key)
	}
	return nil
}

// RemoveMany deletes every key from every tier.
func (c *Composite) RemoveMany(keys []string) error {
	last := len(c.tiers) - 1
	if err := c.tiers[last].RemoveMany(keys); err != nil {
		return err
	}
	for i := 0; i < last; i++ {
		c.tiers[i].RemoveMany(keys)
	}
	return nil
}

// Keys enumerates the authoritative (most durable) tier's keys.
func (c *Composite) Keys() []string {
	return c.tiers[len(c.tiers)-1].Keys()
}

// Contains checks tiers in order without promoting anything.
func (c *Composite) Contains(key string) bool {
	for _, tier := range c.tiers {
		if tier.Contains(key) {
			return true
		}
	}
	return false
}

// Cas delegates to the authoritative tier; on success the new value is
// pushed (not CAS'd) into every faster tier.
func (c *Composite) Cas(key string, value []byte, expected []byte) (bool, error) {
	last := len(c.tiers) - 1
	ok, err := c.tiers[last].Cas(key, value, expected)
	if err != nil || !ok {
		return ok, err
	}
	for i := 0; i < last; i++ {
		c.tiers[i].Set(key, value)
	}
	return true, nil
}

// Clear clears every tier.
func (c *Composite) Clear() error {
	for _, tier := range c.tiers {
		if err := tier.Clear(); err != nil {
			return err
		}
	}
	return nil
}
