package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/wii-build-monitor/internal/render"
)

// Snapshot is a typed view over the settings rows, read once per check so
// admin edits take effect on the next cycle.
type Snapshot struct {
	CheckURL      string
	ChatID        int64
	CacheFile     string
	SourceTZ      string
	TargetTZ      string
	CheckInterval time.Duration
	Viewport      render.Viewport
	RenderServer  string
	// Warnings lists values that failed to parse and were replaced by defaults.
	Warnings []string
}

// LoadSnapshot reads every row and converts numeric fields.
func LoadSnapshot(ctx context.Context, r Reader) (Snapshot, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	snap := Snapshot{
		CheckURL:     stringValue(values, KeyCheckURL),
		CacheFile:    stringValue(values, KeyCacheFile),
		SourceTZ:     stringValue(values, KeySourceTimezone),
		TargetTZ:     stringValue(values, KeyTargetTimezone),
		RenderServer: strings.TrimRight(stringValue(values, KeyRenderServer), "/"),
	}
	snap.ChatID = snap.intValue(values, KeyChatID)
	snap.CheckInterval = time.Duration(snap.intValue(values, KeyCheckInterval)) * time.Second
	snap.Viewport = render.Viewport{
		Width:   int(snap.intValue(values, KeyViewportWidth)),
		Height:  int(snap.intValue(values, KeyViewportHeight)),
		Quality: int(snap.intValue(values, KeyImageQuality)),
	}
	return snap, nil
}

func stringValue(values map[string]string, key string) string {
	if v, ok := values[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	def, _ := DefaultValue(key)
	return def
}

func (s *Snapshot) intValue(values map[string]string, key string) int64 {
	raw := stringValue(values, key)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return n
	}
	def, _ := DefaultValue(key)
	s.Warnings = append(s.Warnings, fmt.Sprintf("%s=%q is not an integer, using %s", key, raw, def))
	n, _ = strconv.ParseInt(def, 10, 64)
	return n
}
