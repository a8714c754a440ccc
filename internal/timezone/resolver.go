// Package timezone resolves the single IANA zone ("admin timezone") that governs
// all period and due-time math for a challenge.
package timezone

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"strikeOutAPI/internal/types/challenge"
)

const zoneinfoMarker = "zoneinfo" + string(filepath.Separator)

var (
	defaultOnce sync.Once
	defaultMu   sync.RWMutex
	defaultZone string

	locations sync.Map // zone name -> *time.Location
	warned    sync.Map // zone name -> struct{}
)

// ResolveAdminTimeZone returns the IANA zone for the challenge. It never fails:
// missing or unloadable zones fall back to the process default.
func ResolveAdminTimeZone(ch challenge.Challenge) string {
	zone := strings.TrimSpace(ch.Due.Timezone)

	switch ch.Due.TimezoneMode {
	case challenge.TimezoneFixed, challenge.TimezoneGroupLocal, challenge.TimezoneUserLocal:
	default:
		if zone != "" {
			warnOnce("mode:"+string(ch.Due.TimezoneMode), "Timezone: unknown timezone mode %q for challenge %s, using its timezone field", ch.Due.TimezoneMode, ch.ID)
		}
	}

	if zone == "" {
		return Default()
	}
	if _, ok := load(zone); !ok {
		warnOnce(zone, "Timezone: cannot load zone %q for challenge %s, falling back to %s", zone, ch.ID, Default())
		return Default()
	}
	return zone
}

// Location returns the loaded location for zone, or the default zone's
// location when zone cannot be loaded.
func Location(zone string) *time.Location {
	if loc, ok := load(zone); ok {
		return loc
	}
	warnOnce(zone, "Timezone: cannot load zone %q, falling back to %s", zone, Default())
	if loc, ok := load(Default()); ok {
		return loc
	}
	return time.Local
}

// IsValid reports whether zone names a loadable IANA zone.
func IsValid(zone string) bool {
	_, ok := load(zone)
	return ok
}

// Default returns the process-wide fallback zone, detected from the runtime on first use.
func Default() string {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultZone == "" {
			defaultZone = detectLocalZone()
			log.Printf("Timezone: default zone resolved to %s", defaultZone)
		}
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultZone
}

// SetDefault overrides the detected default zone. Intended for startup only.
func SetDefault(zone string) bool {
	if _, ok := load(zone); !ok {
		log.Printf("Timezone: ignoring invalid default zone %q", zone)
		return false
	}
	defaultMu.Lock()
	defaultZone = zone
	defaultMu.Unlock()
	return true
}

func load(zone string) (*time.Location, bool) {
	if zone == "" || zone == "Local" {
		return nil, false
	}
	if v, ok := locations.Load(zone); ok {
		return v.(*time.Location), true
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, false
	}
	locations.Store(zone, loc)
	return loc, true
}

func detectLocalZone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		if _, ok := load(tz); ok {
			return tz
		}
	}
	if name := time.Local.String(); name != "Local" {
		if _, ok := load(name); ok {
			return name
		}
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.LastIndex(target, zoneinfoMarker); i >= 0 {
			name := target[i+len(zoneinfoMarker):]
			if _, ok := load(name); ok {
				return name
			}
		}
	}
	log.Println("Timezone: could not detect the runtime zone name, using UTC")
	return "UTC"
}

func warnOnce(key string, format string, args ...any) {
	if _, seen := warned.LoadOrStore(key, struct{}{}); seen {
		return
	}
	log.Printf(format, args...)
}
