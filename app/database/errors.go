package database

import (
	"errors"
	"fmt"
)

// DataSourceError marks a failure to reach or query the category/listing
// store. Callers use errors.As to tell it apart from validation errors.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

func newDataSourceError(op string, err error) error {
	return &DataSourceError{Op: op, Err: err}
}

func IsDataSourceError(err error) bool {
	var dsErr *DataSourceError
	return errors.As(err, &dsErr)
}
