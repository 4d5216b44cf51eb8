package session

import (
	"errors"
	"testing"
	"time"

	"github.com/imagespace/iqrproxy/internal/domain"
)

func TestNewRecord(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	r, err := NewRecord("rec-1", "sid-1", "alice", DefaultFolder, created)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID() != "rec-1" || r.Name() != "sid-1" || r.Creator() != "alice" || r.Folder() != "sessions" {
		t.Errorf("record = %+v", r)
	}
	if r.Created().Location() != time.UTC {
		t.Errorf("created not normalized to UTC: %v", r.Created())
	}
	if !r.Created().Equal(created) {
		t.Errorf("created = %v, want %v", r.Created(), created)
	}
}

func TestNewRecord_Validation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name                         string
		id, sid, creator, folderName string
	}{
		{"missing id", "", "sid", "alice", "sessions"},
		{"missing sid", "rec", "", "alice", "sessions"},
		{"missing creator", "rec", "sid", "", "sessions"},
		{"missing folder", "rec", "sid", "alice", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRecord(tc.id, tc.sid, tc.creator, tc.folderName, now); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewRefineRequest(t *testing.T) {
	pos := []string{"a", "b"}
	r, err := NewRefineRequest("sid-1", pos, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SID() != "sid-1" || len(r.Positive()) != 2 || len(r.Negative()) != 0 {
		t.Errorf("request = %+v", r)
	}

	pos[0] = "changed"
	if r.Positive()[0] != "a" {
		t.Error("request shares the caller's slice")
	}
}

func TestNewRefineRequest_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		sid       string
		pos, neg  []string
		wantParam string
	}{
		{"missing sid", "", []string{}, []string{}, "sid"},
		{"missing positives", "s", nil, []string{}, "pos_uuids"},
		{"missing negatives", "s", []string{}, nil, "neg_uuids"},
		{"empty positive id", "s", []string{""}, []string{}, "pos_uuids"},
		{"empty negative id", "s", []string{}, []string{"x", ""}, "neg_uuids"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRefineRequest(tc.sid, tc.pos, tc.neg)
			var ipe *domain.InvalidParameterError
			if !errors.As(err, &ipe) {
				t.Fatalf("expected InvalidParameterError, got %v", err)
			}
			if ipe.Name != tc.wantParam {
				t.Errorf("param = %q, want %q", ipe.Name, tc.wantParam)
			}
		})
	}
}
