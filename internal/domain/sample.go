package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when a sample range ends before it starts.
var ErrInvalidRange = errors.New("invalid sample range")

// SampleRange is a half-open block range [Start, End).
type SampleRange struct {
	Start uint64
	End   uint64
}

// NewSampleRange validates and returns [start, end).
func NewSampleRange(start, end uint64) (SampleRange, error) {
	if end < start {
		return SampleRange{}, fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, end, start)
	}
	return SampleRange{Start: start, End: end}, nil
}

// Len returns the number of blocks in the range.
func (r SampleRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range contains no blocks.
func (r SampleRange) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether block lies in [Start, End).
func (r SampleRange) Contains(block uint64) bool {
	return block >= r.Start && block < r.End
}

func (r SampleRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
