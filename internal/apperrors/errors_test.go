/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	errSlot := fmt.Errorf("%w: invalid slot", ErrValidation)

	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"nil", nil, KindUnknown, http.StatusInternalServerError},
		{"plain", errors.New("boom"), KindUnknown, http.StatusInternalServerError},
		{"validation", errSlot, KindValidation, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("play jingle: %w", errSlot), KindValidation, http.StatusBadRequest},
		{"empty", fmt.Errorf("%w: queue empty", ErrEmptyResource), KindEmptyResource, http.StatusConflict},
		{"engine", fmt.Errorf("%w: dial", ErrEngineCommunication), KindEngineCommunication, http.StatusBadGateway},
		{"not found", ErrNotFound, KindNotFound, http.StatusNotFound},
		{"conflict", ErrConflict, KindConflict, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}
