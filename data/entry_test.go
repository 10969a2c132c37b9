package data

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	loc := time.FixedZone("test", 3600*5)
	in := time.Date(2024, 3, 4, 5, 6, 7, 891000000, loc)

	s := FormatTimestamp(in)
	if s != "2024-03-04T00:06:07.891Z" {
		t.Fatal("timestamp not rendered in UTC: ", s)
	}

	out, err := ParseTimestamp(s)
	if err != nil {
		t.Fatal("parse error: ", err)
	}

	if !out.Equal(in) {
		t.Fatalf("round trip mismatch: %v != %v", out, in)
	}
}
