// Package controllers implements the mutation surface of the PLM core: each
// controller wraps one persisted object and the acting user, and every
// mutating method runs inside a single database transaction.
package controllers

import "errors"

// Error kinds wrapped by the controller methods. Services map these onto
// http status codes with errors.Is.
var (
	// ErrValidation marks malformed input: empty or forbidden reference,
	// invalid role name, bad quantity.
	ErrValidation = errors.New("validation error")

	// ErrPermission marks an actor lacking the role or right required for
	// the requested mutation.
	ErrPermission = errors.New("permission denied")

	// ErrPromotion marks a domain refusal: object not promotable, not
	// demotable, no represented approvers.
	ErrPromotion = errors.New("promotion not allowed")

	// ErrRevision marks an invalid revise request: bad revision token,
	// object already revised, cancelled or deprecated.
	ErrRevision = errors.New("revision error")

	// ErrConflict marks a lost race: concurrent state change, duplicate
	// natural key, already-alive link.
	ErrConflict = errors.New("conflict")

	// ErrLock marks an invalid file lock or unlock request.
	ErrLock = errors.New("lock error")
)
