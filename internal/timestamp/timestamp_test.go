package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want string
		ok   bool
	}{
		{"generated on", "<pre>Generated on: Mon Jan 6 10:00:00 UTC 2025\n</pre>", "Mon Jan 6 10:00:00 UTC 2025", true},
		{"stops at tag", "Generated on:   2025-01-06 10:00:00  <br>", "2025-01-06 10:00:00", true},
		{"generated", "Generated: 2025-01-06T10:00:00Z</p>", "2025-01-06T10:00:00Z", true},
		{"timestamp label", "<td>timestamp (UTC): 2025-01-06 10:00:00</td>", "2025-01-06 10:00:00", true},
		{"first pattern wins", "Generated: a\nGenerated on: b\n", "b", true},
		{"missing", "<html><body>nothing here</body></html>", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Extract(tc.html)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLayouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, time.January, 6, 10, 0, 0, 0, time.UTC)
	inputs := []string{
		"Mon Jan 6 10:00:00 UTC 2025",
		"Mon Jan  6 10:00:00 UTC 2025",
		"2025-01-06T10:00:00Z",
		"Mon, 06 Jan 2025 10:00:00 +0000",
		"2025-01-06 10:00:00",
		"2025-01-06T10:00:00",
	}
	for _, in := range inputs {
		got, err := Parse(in, "UTC")
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %v", in, got)
	}

	got, err := Parse("Thu Oct 16 14:30:00 UTC 2025", "UTC")
	require.NoError(t, err)
	assert.Equal(t, 16, got.Day())
}

func TestParseLooseFormats(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, time.January, 6, 10, 0, 0, 0, time.UTC)
	inputs := []string{
		"2025-01-06 10:00",
		"06 Jan 2025 10:00:00 UTC",
		"January 6, 2025 10:00:00",
		"2025/01/06 10:00:00",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(in, "UTC")
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "parsed as %v", got)
		})
	}
}

func TestParseZoneAbbreviations(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, source string
		wantHour   int
	}{
		{"Mon Jan 6 10:00:00 CET 2025", "UTC", 9},
		{"Mon Jan 6 10:00:00 CET 2025", "Europe/Paris", 9},
		{"Sun Jul 6 10:00:00 CEST 2025", "UTC", 8},
		{"Sun Jul 6 10:00:00 EEST 2025", "UTC", 7},
		{"Mon Jan 6 10:00:00 EST 2025", "UTC", 15},
		{"Mon Jan 6 10:00:00 GMT 2025", "Europe/Kiev", 10},
		{"Mon Jan 6 10:00:00 UTC 2025", "Europe/Kiev", 10},
	}
	for _, tc := range cases {
		t.Run(tc.in+"/"+tc.source, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in, tc.source)
			require.NoError(t, err)
			assert.Equal(t, tc.wantHour, got.UTC().Hour())
		})
	}

	_, err := Parse("Mon Jan 6 10:00:00 QQT 2025", "UTC")
	require.ErrorIs(t, err, ErrUnknownZone)
	assert.Equal(t, "Mon Jan 6 10:00:00 QQT 2025 (conversion failed)",
		Convert("Mon Jan 6 10:00:00 QQT 2025", "UTC", "Europe/Kiev"))
}

func TestParseUsesSourceZoneForZonelessLayouts(t *testing.T) {
	t.Parallel()

	got, err := Parse("2025-07-01 12:00:00", "Europe/Kiev")
	require.NoError(t, err)
	assert.Equal(t, 9, got.UTC().Hour())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse("yesterday-ish", "UTC")
	require.ErrorIs(t, err, ErrUnparsable)

	_, err = Parse("2025-01-06 10:00:00", "Mars/Olympus")
	require.Error(t, err)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2025-01-06 12:00:00 (Europe/Kiev)",
		Convert("Mon Jan 6 10:00:00 UTC 2025", "UTC", "Europe/Kiev"))
	assert.Equal(t, "2025-07-06 13:00:00 (Europe/Kiev)",
		Convert("Sun Jul 6 10:00:00 UTC 2025", "UTC", "Europe/Kiev"))
	assert.Equal(t, "2025-01-06 10:00:00 (UTC)",
		Convert("2025-01-06 10:00:00", "UTC", "UTC"))
}

func TestConvertFailures(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "garbage (conversion failed)", Convert("garbage", "UTC", "Europe/Kiev"))
	assert.Equal(t, "2025-01-06 10:00:00 (conversion error)",
		Convert("2025-01-06 10:00:00", "UTC", "Nowhere/Special"))
	assert.Equal(t, "2025-01-06 10:00:00 (conversion error)",
		Convert("2025-01-06 10:00:00", "Nowhere/Special", "UTC"))
}

func TestIsRecent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 6, 10, 30, 0, 0, time.UTC)
	window := 30 * time.Minute

	assert.True(t, IsRecent(now, "Mon Jan 6 10:00:00 UTC 2025", window, "UTC"), "exactly at the edge")
	assert.True(t, IsRecent(now, "Mon Jan 6 10:20:00 UTC 2025", window, "UTC"))
	assert.False(t, IsRecent(now, "Mon Jan 6 09:59:59 UTC 2025", window, "UTC"))
	assert.True(t, IsRecent(now, "Mon Jan 6 11:00:00 UTC 2025", window, "UTC"), "future counts as recent")
	assert.False(t, IsRecent(now, "not a time", window, "UTC"))
}

func TestComplete(t *testing.T) {
	t.Parallel()

	assert.True(t, Complete("header\n=== top ===\nload averages: 0.1, 0.2, 0.3\n"))
	assert.False(t, Complete("load averages: 1.0\n=== top ===\n"), "load line must follow the marker")
	assert.False(t, Complete("=== top ===\n(waiting)"))
	assert.False(t, Complete(""))
}
