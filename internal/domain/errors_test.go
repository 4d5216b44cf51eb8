package domain

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestInvalidParameterError(t *testing.T) {
	err := NewInvalidParameter("limit", "must be > 0")

	if !errors.Is(err, ErrInvalidParameter) {
		t.Error("expected errors.Is(ErrInvalidParameter)")
	}
	if err.Error() != "invalid parameter: limit: must be > 0" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestUpstreamError(t *testing.T) {
	err := error(&UpstreamError{Service: "iqr", Op: "get_results", Status: 503, Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, ErrUpstream) {
		t.Error("expected errors.Is(ErrUpstream)")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to be reachable")
	}
	if !strings.Contains(err.Error(), "status 503") || !strings.Contains(err.Error(), "get_results") {
		t.Errorf("Error() = %q", err.Error())
	}

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != 503 {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestUpstreamError_NoCause(t *testing.T) {
	err := error(&UpstreamError{Service: "iqr", Op: "session"})
	if !errors.Is(err, ErrUpstream) {
		t.Error("expected errors.Is(ErrUpstream)")
	}
	if err.Error() != "upstream error: iqr session" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDocumentJoinError(t *testing.T) {
	err := error(&DocumentJoinError{Checksum: "ddd"})
	if !errors.Is(err, ErrDocumentJoin) {
		t.Error("expected errors.Is(ErrDocumentJoin)")
	}
	if !strings.Contains(err.Error(), `"ddd"`) {
		t.Errorf("Error() = %q", err.Error())
	}

	err = &DocumentJoinError{Reason: "document without checksum field"}
	if err.Error() != "document join error: document without checksum field" {
		t.Errorf("Error() = %q", err.Error())
	}
}
