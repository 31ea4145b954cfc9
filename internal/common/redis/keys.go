package redis

import "fmt"

const progressKeyPrefix = "exerciser:progress:"

// ProgressKey returns the hash key a single run's progress entry is
// written under, namespaced by the run group (normally the target
// origin) so unrelated runs' entries are never listed together.
func ProgressKey(group, runID string) string {
	return fmt.Sprintf("%s%s:%s", progressKeyPrefix, group, runID)
}

// ProgressPattern returns the scan pattern matching every run's
// progress key within a group.
func ProgressPattern(group string) string {
	return fmt.Sprintf("%s%s:*", progressKeyPrefix, group)
}
