package storer

import (
	"io"

	"github.com/ketchgit/core/plumbing"
)

// ErrStop is used to stop a ForEach function in an Iter
var ErrStop = goerrStop{}

type goerrStop struct{}

func (goerrStop) Error() string { return "stop iteration" }

// ReferenceIter is a generic closable interface for iterating over references.
type ReferenceIter interface {
	Next() (*plumbing.Ref, error)
	ForEach(func(*plumbing.Ref) error) error
	Close()
}

// referenceSliceIter implements ReferenceIter over a plain slice.
type referenceSliceIter struct {
	series []*plumbing.Ref
	pos    int
}

// NewReferenceSliceIter returns a reference iterator over a slice, in
// order. The iterator takes ownership of the slice: it must not be
// modified by the caller afterwards.
func NewReferenceSliceIter(series []*plumbing.Ref) ReferenceIter {
	return &referenceSliceIter{series: series}
}

func (it *referenceSliceIter) Next() (*plumbing.Ref, error) {
	if it.pos >= len(it.series) {
		return nil, io.EOF
	}
	obj := it.series[it.pos]
	it.pos++
	return obj, nil
}

func (it *referenceSliceIter) ForEach(cb func(*plumbing.Ref) error) error {
	for _, r := range it.series[it.pos:] {
		if err := cb(r); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return nil
}

func (it *referenceSliceIter) Close() { it.pos = len(it.series) }

type referenceFilteredIter struct {
	keep func(*plumbing.Ref) bool
	iter ReferenceIter
}

// NewReferenceFilteredIter returns a reference iterator over those
// references from iter for which keep returns true.
func NewReferenceFilteredIter(keep func(*plumbing.Ref) bool, iter ReferenceIter) ReferenceIter {
	return &referenceFilteredIter{keep, iter}
}

func (it *referenceFilteredIter) Next() (*plumbing.Ref, error) {
	for {
		r, err := it.iter.Next()
		if err != nil {
			return nil, err
		}
		if it.keep(r) {
			return r, nil
		}
	}
}

func (it *referenceFilteredIter) ForEach(cb func(*plumbing.Ref) error) error {
	for {
		r, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(r); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
}

func (it *referenceFilteredIter) Close() { it.iter.Close() }

type multiReferenceIter struct {
	iters []ReferenceIter
}

// NewMultiReferenceIter returns a reference iterator that walks each of
// iters in turn, in order.
func NewMultiReferenceIter(iters []ReferenceIter) ReferenceIter {
	return &multiReferenceIter{iters: iters}
}

func (it *multiReferenceIter) Next() (*plumbing.Ref, error) {
	for len(it.iters) > 0 {
		r, err := it.iters[0].Next()
		if err == io.EOF {
			it.iters[0].Close()
			it.iters = it.iters[1:]
			continue
		}
		return r, err
	}
	return nil, io.EOF
}

func (it *multiReferenceIter) ForEach(cb func(*plumbing.Ref) error) error {
	for {
		r, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(r); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
}

func (it *multiReferenceIter) Close() {
	for _, i := range it.iters {
		i.Close()
	}
	it.iters = nil
}
