// Package textutil bounds and splits free text before it reaches an embedder
// or a prompt.
package textutil

import "strings"

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = "\n...[TRUNCATED]..."

// Truncate bounds s to max runes, appending TruncationMarker when it cuts.
// A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + TruncationMarker
}

// Prefix returns at most n runes of s with surrounding whitespace removed.
func Prefix(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if n > 0 && len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(string(r))
}

// Chunk splits text into windows of size runes that advance by size-overlap.
// Whitespace-only windows are dropped. An overlap outside [0, size) is
// clamped so the window always advances.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	r := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(r); start += step {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		if c := string(r[start:end]); strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
		if end == len(r) {
			break
		}
	}
	return chunks
}
