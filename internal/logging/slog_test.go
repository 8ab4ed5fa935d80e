package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerHelpers(t *testing.T) {
	logger := slog.Default()

	tests := []struct {
		name   string
		result *slog.Logger
	}{
		{"WithOperation", WithOperation(logger, "auth_begin")},
		{"WithTool", WithTool(logger, "list_calendar_events")},
		{"WithComponent", WithComponent(logger, "callback")},
		{"WithUser", WithUser(logger, 42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result == nil {
				t.Errorf("%s returned nil", tt.name)
			}
		})
	}
}

func TestStringAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"Operation", Operation("complete"), KeyOperation, "complete"},
		{"Tool", Tool("create_calendar_event"), KeyTool, "create_calendar_event"},
		{"Status", Status(StatusSuccess), KeyStatus, StatusSuccess},
		{"RequestID", RequestID("abc"), KeyRequestID, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("%s key = %q, want %q", tt.name, tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("%s value = %q, want %q", tt.name, tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestChatAttr(t *testing.T) {
	attr := Chat(-100123)
	if attr.Key != KeyChat {
		t.Errorf("Chat key = %q, want %q", attr.Key, KeyChat)
	}
	if attr.Value.Int64() != -100123 {
		t.Errorf("Chat value = %d, want %d", attr.Value.Int64(), -100123)
	}
}

func TestErr(t *testing.T) {
	err := errors.New("test error")
	attr := Err(err)
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// Empty Group has empty key
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeUserID(t *testing.T) {
	got := AnonymizeUserID(123456789)
	if len(got) != 21 { // "user:" + 16 hex chars
		t.Errorf("AnonymizeUserID length = %d, want 21", len(got))
	}
	if !strings.HasPrefix(got, "user:") {
		t.Errorf("AnonymizeUserID should start with 'user:', got %q", got)
	}
	if strings.Contains(got, "123456789") {
		t.Errorf("AnonymizeUserID leaked the raw id: %q", got)
	}

	if AnonymizeUserID(1) != AnonymizeUserID(1) {
		t.Error("AnonymizeUserID should return deterministic results")
	}
	if AnonymizeUserID(1) == AnonymizeUserID(2) {
		t.Error("Different ids should produce different hashes")
	}
}

func TestUser(t *testing.T) {
	attr := User(7)
	if attr.Key != KeyUserHash {
		t.Errorf("User key = %q, want %q", attr.Key, KeyUserHash)
	}
	if attr.Value.String() != AnonymizeUserID(7) {
		t.Errorf("User value = %q, want %q", attr.Value.String(), AnonymizeUserID(7))
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"ya29.a0AfH6SMBx", "[token:15 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := SanitizeToken(tt.token)
			if result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}
