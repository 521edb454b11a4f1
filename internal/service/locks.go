package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedMutex serializes work per run id without a per-id map that would
// grow with the id space. Two ids may share a stripe; that only costs a
// little extra contention, never correctness.
type stripedMutex struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *stripedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
