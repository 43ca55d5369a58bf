// Package history persists tutoring conversations as JSONL, one file per topic.
//
// Each finalized session appends two lines, the student's explanation and the
// grandpa's reply. Load pairs them back into turns and skips lines that do not
// parse, so a torn write never blocks a topic.
package history
