package collection

import (
	"fmt"

	"github.com/shelfdb/shelf/lib/search"
)

// --------------------------------------------------------------------------
// Record Type
// --------------------------------------------------------------------------

// Record is the dynamic shape of a stored record: a mapping of field name to
// value with a required identifier field. Beyond the identifier, records are
// opaque to the storage layer; no other field is schema-validated.
//
// Record is an alias (not a defined type) so that values flow between the
// collection, search and codec layers without conversions.
type Record = map[string]interface{}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICollection is the generic interface for interacting with one collection
// of records. All implementations (the manager's local proxy and the RPC
// client) share this interface, so applications can switch between embedded
// and remote access without code changes.
//
// Identifier semantics: any id parameter accepts numeric or string values;
// a numeric string and its numeric equivalent address the same record.
//
// Miss semantics: Get and Update return a nil record (and nil error) when
// the identifier has no record. Only malformed identifiers and storage
// failures produce errors.
type ICollection interface {
	// Add inserts a record. A missing identifier field is assigned by the
	// store's id policy; an explicit identifier that already exists makes
	// Add behave like Save (last write wins).
	Add(rec Record) (Record, error)

	// Save inserts or fully replaces a record by its identifier.
	Save(rec Record) (Record, error)

	// Get returns the record for an identifier, or nil if absent.
	Get(id interface{}) (Record, error)

	// GetMany returns the records for the given identifiers. Missing
	// identifiers yield no entry; the result preserves request order.
	GetMany(ids []interface{}) ([]Record, error)

	// GetAll returns every record in the collection.
	GetAll() ([]Record, error)

	// Update merges the given changes into an existing record and returns
	// the merged record, or nil if the identifier has no record.
	Update(id interface{}, changes Record) (Record, error)

	// Delete removes a record. The boolean reports whether one existed.
	Delete(id interface{}) (bool, error)

	// Clear removes every record in the collection.
	Clear() error

	// Count returns the number of records in the collection.
	Count() (int, error)

	// AddMany inserts all records in one transaction. Identifiers assigned
	// within the batch are pairwise distinct. On error nothing is inserted.
	AddMany(recs []Record) ([]Record, error)

	// UpdateMany merges all changes in one transaction. Records whose
	// identifier is absent are skipped; the merged records are returned.
	UpdateMany(recs []Record) ([]Record, error)

	// DeleteMany removes all given identifiers in one transaction and
	// returns how many records existed.
	DeleteMany(ids []interface{}) (int, error)

	// TryAddMany is AddMany degraded to a boolean outcome: failures are
	// logged and reported as false. Callers that need the underlying cause
	// must use AddMany.
	TryAddMany(recs []Record) bool

	// TryUpdateMany is the boolean variant of UpdateMany.
	TryUpdateMany(recs []Record) bool

	// TryDeleteMany is the boolean variant of DeleteMany.
	TryDeleteMany(ids []interface{}) bool

	// Search materializes the collection and applies criteria, ordering
	// and pagination. No secondary index acceleration is performed.
	Search(criteria Record, opts search.Options) (search.Result, error)

	// Filter is Search without ordering or pagination: it returns every
	// record matching the criteria.
	Filter(criteria Record) ([]Record, error)

	// Stats returns record count and size distribution for the collection.
	Stats() (Stats, error)
}

// --------------------------------------------------------------------------
// Stats Type
// --------------------------------------------------------------------------

// Stats describes one collection's content. Size figures are measured on
// the encoded representation and are estimates, not exact byte counts.
type Stats struct {
	Collection  string `json:"collection" msgpack:"collection"`
	Count       int    `json:"count" msgpack:"count"`
	TotalBytes  int64  `json:"total_bytes" msgpack:"total_bytes"`
	AvgBytes    int    `json:"avg_bytes" msgpack:"avg_bytes"`
	MedianBytes int    `json:"median_bytes" msgpack:"median_bytes"`
	P95Bytes    int    `json:"p95_bytes" msgpack:"p95_bytes"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message, and optionally the underlying cause.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // The wrapped cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("CollectionError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("CollectionError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause so errors.Is/As see through the code.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code and message wrapping a cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{
		Code:  code,
		Msg:   msg,
		Cause: cause,
	}
}

// CodeOf extracts the RetCode from an error, or RetCInternalError when the
// error does not carry one.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	if ce, ok := err.(*Error); ok {
		return ce.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                       // 1: Operation failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the underlying engine.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCConfiguration                       // 4: Invalid store or connection configuration.
	RetCCollectionNotFound                  // 5: Referenced collection does not exist.
	RetCTransactionStart                    // 6: Engine refused to create the transaction.
	RetCOperation                           // 7: The caller's unit of work failed.
	RetCTransactionAborted                  // 8: Engine aborted the transaction.
	RetCInvalidIdentifier                   // 9: Malformed or missing record identifier.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConfiguration:
		return "Configuration"
	case RetCCollectionNotFound:
		return "CollectionNotFound"
	case RetCTransactionStart:
		return "TransactionStart"
	case RetCOperation:
		return "Operation"
	case RetCTransactionAborted:
		return "TransactionAborted"
	case RetCInvalidIdentifier:
		return "InvalidIdentifier"
	default:
		return "Unknown"
	}
}
