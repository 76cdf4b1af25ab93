package replica

// Progress of the network pass, in bytes
type Progress struct {
	Done  int64
	Total int64
}

// Percent of bytes downloaded so far
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return 100 * float64(p.Done) / float64(p.Total)
}
