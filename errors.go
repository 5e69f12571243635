package lumenvk

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInRAM is reported when uploading a resource that has no host data.
	ErrNotInRAM = errors.New("lumenvk: resource data is not in RAM")
	// ErrNotCreated is reported when updating a resource that was never created.
	ErrNotCreated = errors.New("lumenvk: resource was never created")
	// ErrDestroyed is returned by operations on a destroyed resource.
	ErrDestroyed = errors.New("lumenvk: resource is destroyed")
	// ErrFeatureUnsupported is returned when a required feature group is not enabled.
	ErrFeatureUnsupported = errors.New("lumenvk: feature not supported by device")
	// ErrUnknownTransition is raised for layout transitions missing from the
	// barrier table.
	ErrUnknownTransition = errors.New("lumenvk: unknown image layout transition")
	// ErrInvalidBinding is returned for malformed descriptor binding lists.
	ErrInvalidBinding = errors.New("lumenvk: invalid descriptor binding")
)

// FatalError is an unrecoverable failure: the engine, or the object being
// built, cannot be used afterwards.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("lumenvk: fatal: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err, or an error it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func orPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

// checkErr recovers a panic raised during construction into *err.
func checkErr(err *error) {
	if v := recover(); v != nil {
		*err = recovered(v)
	}
}

func recovered(v any) error {
	if e, ok := v.(error); ok {
		return e
	}
	return fmt.Errorf("%+v", v)
}
