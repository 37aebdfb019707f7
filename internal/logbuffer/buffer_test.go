/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRingOverwritesOldest(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Entry{Level: "info", Message: msg})
	}
	got := b.Query(Query{})
	var msgs []string
	for _, e := range got {
		msgs = append(msgs, e.Message)
	}
	if want := []string{"d", "c", "b"}; !slices.Equal(msgs, want) {
		t.Fatalf("messages = %v, want %v", msgs, want)
	}
	if st := b.Stats(); st.Count != 3 || st.Capacity != 3 || st.ByLevel["info"] != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestWriterCapturesZerologRecords(t *testing.T) {
	b := New(10)
	logger := zerolog.New(b).With().Timestamp().Logger()
	logger.Info().Str("component", "rotation").Str("rule", "ids").Msg("rule fired")
	logger.Warn().Str("component", "engine").Msg("engine unreachable")
	logger.Debug().Str("component", "api").Msg("http request")

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all", Query{MinLevel: zerolog.DebugLevel}, []string{"http request", "engine unreachable", "rule fired"}},
		{"warn and above", Query{MinLevel: zerolog.WarnLevel}, []string{"engine unreachable"}},
		{"component", Query{Component: "rotation"}, []string{"rule fired"}},
		{"search", Query{Search: "ENGINE"}, []string{"engine unreachable"}},
		{"limit", Query{Limit: 1}, []string{"http request"}},
		{"since future", Query{Since: time.Now().Add(time.Hour)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range b.Query(tt.query) {
				got = append(got, e.Message)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	entries := b.Query(Query{Component: "rotation"})
	if entries[0].Fields["rule"] != "ids" {
		t.Fatalf("fields = %v, want rule=ids", entries[0].Fields)
	}
	if got := b.Components(); !slices.Equal(got, []string{"api", "engine", "rotation"}) {
		t.Fatalf("components = %v", got)
	}
}

func TestWriteIgnoresNonJSON(t *testing.T) {
	b := New(2)
	if n, err := b.Write([]byte("plain text\n")); err != nil || n != 11 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if st := b.Stats(); st.Count != 0 {
		t.Fatalf("count = %d, want 0", st.Count)
	}
}
