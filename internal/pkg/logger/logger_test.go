package logger

import "testing"

func TestSanitizeKVsHashesStudentAndRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"student_id", "s-1", "openai_api_key", "sk-abc", "gap_code", "G1"})
	if len(out) != 6 {
		t.Fatalf("len: want=6 got=%d", len(out))
	}
	hashed, _ := out[1].(string)
	if hashed == "s-1" || len(hashed) != len("hash:")+12 {
		t.Fatalf("student_id not hashed: %v", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Fatalf("api key not redacted: %v", out[3])
	}
	if out[5] != "G1" {
		t.Fatalf("gap_code changed: %v", out[5])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"job_id", "j1", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestNewTestMode(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("component", "x").Info("quiet")
	log.Sync()
}
