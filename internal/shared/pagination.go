package shared

// Pagination normalises limit/offset query values.
type Pagination struct {
	Limit  int
	Offset int
}

// Normalise clamps the pagination to sane bounds.
func (p Pagination) Normalise() Pagination {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
