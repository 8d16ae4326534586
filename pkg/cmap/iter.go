package cmap

// Range calls fn for every entry until fn returns false. fn must not call
// back into the map: the shard read lock is held while it runs.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns a snapshot of all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Values returns a snapshot of all values.
func (m *Map[K, V]) Values() []V {
	vals := make([]V, 0, m.Count())
	m.Range(func(_ K, v V) bool {
		vals = append(vals, v)
		return true
	})
	return vals
}

// DeleteIf removes every entry for which pred returns true and returns the
// number removed. pred runs under the shard write lock.
func (m *Map[K, V]) DeleteIf(pred func(key K, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
