/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWithWriterTeesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)
	logger.Info().Str("component", "test").Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["message"] != "hello" || rec["component"] != "test" {
		t.Fatalf("record = %v", rec)
	}
}

func TestSetupLevels(t *testing.T) {
	if got := Setup("development").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("development level = %v, want debug", got)
	}
	if got := Setup("production").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("production level = %v, want info", got)
	}
}

func TestParseLevel(t *testing.T) {
	base := zerolog.Nop().Level(zerolog.InfoLevel)
	l, err := ParseLevel(base, "warn")
	if err != nil || l.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("ParseLevel(warn) = %v, %v", l.GetLevel(), err)
	}
	if _, err := ParseLevel(base, "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if l, _ := ParseLevel(base, ""); l.GetLevel() != zerolog.InfoLevel {
		t.Fatal("empty name should keep the level")
	}
}
