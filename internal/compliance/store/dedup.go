// Package store persists compliance audits and violation reports.
package store

import "time"

// DedupBucket maps a detection time onto the fixed-width bucket used by the
// (organization, rule, bucket) uniqueness backstop. Two detections in the same
// bucket are always less than one window apart.
func DedupBucket(t time.Time, window time.Duration) int64 {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	unix := t.Unix()
	bucket := unix / seconds
	if unix < 0 && unix%seconds != 0 {
		bucket--
	}
	return bucket
}
