// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk partitions ID lists so that a single remote call never
// carries more than a bounded number of entities.
package chunk

import "fmt"

// DefaultSize is the number of entities sent per batched RPC.
const DefaultSize = 24

// Split partitions items into consecutive chunks of at most size elements.
// A list that already fits is returned as a single chunk, so callers can
// always range over the result. An empty list yields no chunks.
func Split[T any](items []T, size int) [][]T {
	if size < 1 {
		panic(fmt.Sprintf("chunk: invalid size %d", size))
	}
	if len(items) == 0 {
		return nil
	}
	if len(items) <= size {
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
