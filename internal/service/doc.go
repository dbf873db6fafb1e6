// Package service contains the application layer: the error taxonomy shared
// by every service and the scheduler configuration use cases. The
// scheduling use cases live in subpackages:
//
//   - lesson: the transactional lesson completion
//   - dueset: read-only due/not-due classification and lesson candidates
//   - auth: bearer token validation
//
// Services receive their stores through constructor injection and depend on
// the interfaces in internal/store, never on a concrete backend. Every error
// a service returns is a *ServiceError whose chain holds exactly one of the
// category sentinels (ErrValidation, ErrNotFound, ErrInvalidState,
// ErrInconsistentState, ErrPersistence).
package service
