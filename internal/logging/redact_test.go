package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestPoolAndAccountIDsStayVisible(t *testing.T) {
	if !IsAllowlisted("pool_id") || !IsAllowlisted("account_id") {
		t.Fatalf("expected pool_id/account_id to stay visible for operator correlation: %v", RedactionAllowlist())
	}
}

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	sensitive := "pc-auth-token-abc123"
	logger.Warn("payment center call failed", MaskField("pc_auth_token", sensitive))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log payload: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte(sensitive)) {
		t.Fatalf("log output leaked sensitive token: %s", buf.Bytes())
	}
	if entry["pc_auth_token"] != RedactedValue {
		t.Fatalf("expected redacted token, got %v", entry["pc_auth_token"])
	}
}
