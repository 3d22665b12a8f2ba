package sdr

import (
	"fmt"
	"sync"
)

// SampleBuffer implements a thread-safe, fixed-capacity FIFO ring of the most
// recent samples. It is written by a single owner and read by any number of
// consumers through Snapshot, which returns a copy in arrival order.
// Once the capacity is reached, every Add evicts the oldest sample.
type SampleBuffer struct {
	mu    sync.RWMutex
	slots []*Sample
	head  int    // Index of the oldest sample
	size  int    // Number of stored samples
	total uint64 // Number of samples ever added
}

// NewSampleBuffer creates a buffer that retains up to capacity samples.
// Returns an error if capacity is not positive.
func NewSampleBuffer(capacity int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	return &SampleBuffer{
		slots: make([]*Sample, capacity),
	}, nil
}

// Add appends a sample, evicting the oldest one when the buffer is full.
// It returns the evicted sample, if any. Returns an error if the sample is nil.
func (b *SampleBuffer) Add(s *Sample) (*Sample, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot add nil sample")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++

	if b.size < len(b.slots) {
		b.slots[(b.head+b.size)%len(b.slots)] = s
		b.size++
		return nil, nil
	}

	evicted := b.slots[b.head]
	b.slots[b.head] = s
	b.head = (b.head + 1) % len(b.slots)
	return evicted, nil
}

// Snapshot returns the buffered samples, oldest first. Returns nil if the buffer is empty.
func (b *SampleBuffer) Snapshot() []*Sample {
	return b.Recent(-1)
}

// Recent returns up to n of the newest samples, oldest first.
// A negative n returns everything.
func (b *SampleBuffer) Recent(n int) []*Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 || n == 0 {
		return nil
	}
	if n < 0 || n > b.size {
		n = b.size
	}

	results := make([]*Sample, 0, n) // Preallocate with capacity
	for i := b.size - n; i < b.size; i++ {
		results = append(results, b.slots[(b.head+i)%len(b.slots)])
	}
	return results
}

// Size returns the current number of samples in the buffer.
func (b *SampleBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of samples retained.
func (b *SampleBuffer) Capacity() int {
	return len(b.slots)
}

// Total returns the number of samples added since creation, evicted ones included.
func (b *SampleBuffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Clear removes all samples from the buffer.
func (b *SampleBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.slots)
	b.head = 0
	b.size = 0
}
