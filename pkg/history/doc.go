// Package history bounds the job and inventory history exposed to
// consumers.
//
// Reduce never mutates its input. Ignored jobs are filtered from the active
// lists and every historical category is truncated to its retention count,
// keeping the entries with the highest job ids.
package history
