package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNoOpDoesNotPanic(t *testing.T) {
	l := NoOp()
	l.LogInfo("hello")
	l.LogError("boom", errors.New("oops"))
	l.LogOp("put", time.Millisecond, map[string]interface{}{"n": 1})
}

func TestTextLoggerDoesNotPanic(t *testing.T) {
	l := NewTextLogger()
	l.LogInfo("hello")
	l.LogError("boom", errors.New("oops"))
	l.LogOp("put", time.Millisecond, map[string]interface{}{"n": 1})
}

func TestJSONLLoggerLogInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLLogger(&buf)
	l.LogInfo("hello")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry.Level != "info" || entry.Message != "hello" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestJSONLLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLLogger(&buf)
	l.LogError("failed", errors.New("disk full"))

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry.Level != "error" || entry.Error != "disk full" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestJSONLLoggerLogOp(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLLogger(&buf)
	l.LogOp("put_block", 5*time.Millisecond, map[string]interface{}{"cid": "abc"})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry.Op != "put_block" {
		t.Errorf("expected op put_block, got %q", entry.Op)
	}
	if entry.Fields["cid"] != "abc" {
		t.Errorf("expected fields.cid=abc, got %+v", entry.Fields)
	}
}

func TestLogrusLoggerDoesNotPanic(t *testing.T) {
	l := NewLogrusLogger(nil)
	l.LogInfo("hello")
	l.LogError("boom", errors.New("oops"))
	l.LogOp("put", time.Millisecond, map[string]interface{}{"n": 1})
}
