package component

import "errors"

// ErrAttributeConflict is returned when an option would set an attribute the
// component already owns or one that was set earlier.
var ErrAttributeConflict = errors.New("component: attribute conflict")

// ErrInvalidKey is returned for an explicit key that cannot serve as an
// element id, a CSS id selector and a route path segment.
var ErrInvalidKey = errors.New("component: invalid key")

// ErrInvalidAttribute is returned for an extra attribute name that is not a
// valid HTML attribute name.
var ErrInvalidAttribute = errors.New("component: invalid attribute name")

// ErrDetached is returned by OnChange when the component is not attached to
// a tree whose root can register routes.
var ErrDetached = errors.New("component: not attached to a root")

// ErrNoTarget is returned when a binding has no target or a nil target.
var ErrNoTarget = errors.New("component: binding needs at least one target")

// ErrInvalidTrigger is returned for empty or malformed trigger names.
var ErrInvalidTrigger = errors.New("component: invalid trigger")

// ErrInvalidSwap is returned for swap modes htmx does not understand.
var ErrInvalidSwap = errors.New("component: invalid swap mode")

// ErrNilHandler is returned when OnChange is given no handler.
var ErrNilHandler = errors.New("component: nil handler")

// ErrKindMismatch is returned by Update when the new widget is a different
// variant from the current one.
var ErrKindMismatch = errors.New("component: widget kind mismatch")

// ErrUnknownKind is returned by the layout loader for an unknown kind.
var ErrUnknownKind = errors.New("component: unknown kind")
