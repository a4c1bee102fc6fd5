package dbtest

import "sync/atomic"

type sequence struct {
	n atomic.Int64
}

func (s *sequence) next() int64 {
	return s.n.Add(1) % 10000
}

var contractSeq sequence
