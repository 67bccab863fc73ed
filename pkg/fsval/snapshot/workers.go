package snapshot

// Walker concurrency limits.
const (
	// maxWorkers caps the walker pool to avoid excessive context switching.
	maxWorkers = 64

	// minWorkers is the floor for the automatic pool size. A snapshot is
	// metadata-only, so the walk waits on the filesystem far more than on
	// the CPU.
	minWorkers = 8
)

// TunedWorkers returns the walker pool size for a machine with cpus
// logical cores: max(cpus, 8) capped at 64. An override above zero wins,
// still respecting the cap.
func TunedWorkers(cpus, override int) int {
	if override > 0 {
		return min(override, maxWorkers)
	}
	return min(max(cpus, minWorkers), maxWorkers)
}
