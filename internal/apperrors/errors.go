/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package apperrors defines the error taxonomy shared by the playout core.
//
// Component packages declare their own sentinel errors and wrap one of the
// roots below, so callers can branch on the kind without knowing every
// component's error set.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for fallback and transport decisions.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindValidation          Kind = "validation"
	KindEmptyResource       Kind = "empty_resource"
	KindEngineCommunication Kind = "engine_communication"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
)

var (
	// ErrValidation marks rejected input. No state was mutated.
	ErrValidation = errors.New("validation error")

	// ErrEmptyResource marks an exhausted queue or category pool.
	ErrEmptyResource = errors.New("empty resource")

	// ErrEngineCommunication marks a failed exchange with the audio engine.
	ErrEngineCommunication = errors.New("engine communication error")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation against state that changed underneath.
	ErrConflict = errors.New("conflict")
)

// KindOf returns the taxonomy kind of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrEmptyResource):
		return KindEmptyResource
	case errors.Is(err, ErrEngineCommunication):
		return KindEngineCommunication
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindUnknown
	}
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindEmptyResource:
		return http.StatusConflict
	case KindEngineCommunication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
