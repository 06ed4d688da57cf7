package model

// Stats counts admission outcomes of a hit, query, or source run.
type Stats struct {
	Downloaded int `json:"downloaded"`
	Restricted int `json:"restricted"`
	Skipped    int `json:"skipped"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Downloaded += o.Downloaded
	s.Restricted += o.Restricted
	s.Skipped += o.Skipped
}
