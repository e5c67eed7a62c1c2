// Package sequence implements the gap-aware, wraparound-safe auto-
// increment allocator used for auto_inc columns. A Sequence hands out
// values from [min, max] in increment-sized steps, wrapping around the
// range when it overflows, and persists an "allocated" watermark so that a
// crash can never cause the same value to be generated twice.
package sequence
