package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(CodeUnauthenticated, "test message", http.StatusUnauthorized),
			want: "[AUTH_1001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(CodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestError_WithDetails(t *testing.T) {
	err := New(CodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "email").WithDetails("reason", "malformed")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "email" {
		t.Errorf("Details[field] = %v, want email", err.Details["field"])
	}
}

func TestConcurrentModification_IsConflict(t *testing.T) {
	err := ConcurrentModification()
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
	if !Is(err) {
		t.Error("Is() = false, want true")
	}
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Error("HTTPStatus for a plain error should default to 500")
	}
}

func TestInvalidTransition_Details(t *testing.T) {
	err := InvalidTransition("submitted", "paid")
	if err.Details["from"] != "submitted" || err.Details["to"] != "paid" {
		t.Errorf("unexpected details: %+v", err.Details)
	}
}
