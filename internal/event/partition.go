package event

import "time"

const partitionLayout = "2006-01-02"

// PartitionName returns the daily index for ts: <prefix>-YYYY-MM-DD, using
// the UTC calendar day.
func PartitionName(prefix string, ts time.Time) string {
	return prefix + "-" + ts.UTC().Format(partitionLayout)
}

// PartitionPattern matches every daily index for prefix.
func PartitionPattern(prefix string) string {
	return prefix + "-*"
}

// TemplateName is the index template governing prefix's partitions.
func TemplateName(prefix string) string {
	return prefix + "-template"
}
