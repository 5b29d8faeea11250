package memutils

// CohortStatistics tracks coarse-grained accounting for a tag's worth of
// managed allocations: how many exist, how many bytes are currently
// materialized, and how many have ever been evicted into quarantine.
// It carries no per-block detail because this module has no sub-block
// suballocation concept — it tracks whole managed allocations only.
type CohortStatistics struct {
	EntryCount        int
	MaterializedCount int
	MaterializedBytes int
	QuarantineCount   int
}

func (s *CohortStatistics) Clear() {
	*s = CohortStatistics{}
}

func (s *CohortStatistics) AddStatistics(other *CohortStatistics) {
	s.EntryCount += other.EntryCount
	s.MaterializedCount += other.MaterializedCount
	s.MaterializedBytes += other.MaterializedBytes
	s.QuarantineCount += other.QuarantineCount
}
