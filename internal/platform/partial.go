package platform

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseRejectedIndices extracts the 0-based batch positions named by a 400
// response body of the form {"errors":[{"source":{"pointer":"/1/value"}}]}
// or a bare {"source":{"pointer":"/1/value"}}.
//
// Entries whose pointer is missing, shorter than two characters, or not led
// by a numeric segment are skipped. The result is nil when the body is not
// one of the two shapes or when no index could be extracted.
func ParseRejectedIndices(body []byte) []int {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}

	var sources []gjson.Result

	if errs := root.Get("errors"); errs.Exists() {
		if !errs.IsArray() {
			return nil
		}

		for _, e := range errs.Array() {
			if !e.IsObject() {
				return nil
			}

			sources = append(sources, e.Get("source"))
		}
	} else {
		sources = append(sources, root.Get("source"))
	}

	var indices []int

	seen := make(map[int]bool)

	for _, src := range sources {
		if !src.Exists() {
			continue
		}

		if !src.IsObject() {
			return nil
		}

		ptr := src.Get("pointer")
		if ptr.Type != gjson.String {
			continue
		}

		idx, ok := pointerIndex(ptr.String())
		if !ok || seen[idx] {
			continue
		}

		seen[idx] = true
		indices = append(indices, idx)
	}

	return indices
}

// pointerIndex returns the leading numeric segment of a JSON pointer such as
// "/3/value".
func pointerIndex(pointer string) (int, bool) {
	if len(pointer) < 2 || pointer[0] != '/' {
		return 0, false
	}

	seg, _, _ := strings.Cut(pointer[1:], "/")

	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// Without returns items minus the positions in indices, preserving order.
// Out-of-range indices are ignored.
func Without[T any](items []T, indices []int) []T {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		if !drop[i] {
			out = append(out, item)
		}
	}

	return out
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}

	return out
}
