package ecs

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocationFailed is returned when the meta table cannot grow to hold a
	// new index. The caller may free other state and retry.
	ErrAllocationFailed = errors.New("ecs: allocation failed")

	// ErrIdentifierSpaceExhausted is returned once the fresh cursor has handed
	// out every representable index. Exhausted index space is never reclaimed.
	ErrIdentifierSpaceExhausted = errors.New("ecs: identifier space exhausted")

	// ErrAlreadyFreed means the entity is dead or its generation is stale.
	ErrAlreadyFreed = errors.New("ecs: entity already freed")

	// ErrUnknownEntity means the entity's index was never allocated.
	ErrUnknownEntity = errors.New("ecs: unknown entity")
)

// FreeError reports why a Free call was rejected.
//
// errors.Is matches it against ErrAlreadyFreed or ErrUnknownEntity.
type FreeError struct {
	Entity EntityID
	Reason error
}

func (e *FreeError) Error() string {
	return fmt.Sprintf("free %s: %v", e.Entity, e.Reason)
}

func (e *FreeError) Unwrap() error { return e.Reason }

func alreadyFreed(id EntityID) error  { return &FreeError{Entity: id, Reason: ErrAlreadyFreed} }
func unknownEntity(id EntityID) error { return &FreeError{Entity: id, Reason: ErrUnknownEntity} }
