package hierarchy

import "errors"

var (
	ErrInvalidInput   = errors.New("hierarchy: invalid input")
	ErrNodeNotFound   = errors.New("hierarchy: node not found")
	ErrDuplicateName  = errors.New("hierarchy: duplicate sibling name")
	ErrCyclicMove     = errors.New("hierarchy: move would create a cycle")
	ErrHasChildren    = errors.New("hierarchy: node has children")
	ErrHasAssignments = errors.New("hierarchy: node has assignments")
)
