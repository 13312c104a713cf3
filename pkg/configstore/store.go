// Package configstore persists scriptdepot settings as a flat key/value map
// in config.json under the depot home, layered with viper defaults and
// environment overrides.
package configstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/fulmenhq/scriptdepot/pkg/safeio"
)

// Recognized configuration keys.
const (
	KeyVerifyChecksums      = "verify_checksums"
	KeyForceRemoteDownloads = "force_remote_downloads"
	KeyAutoCheckUpdates     = "auto_check_updates"
	KeyAutoInstallUpdates   = "auto_install_updates"
	KeyUpdateCheckInterval  = "update_check_interval_minutes"
	KeyManifestCacheMaxAge  = "manifest_cache_max_age_seconds"
	KeyCacheTimeoutDays     = "cache_timeout_days"
	KeyLastUpdateCheck      = "last_update_check"
	KeyCustomManifestURL    = "custom_manifest_url"
	KeyUsePublicRepository  = "use_public_repository"
	KeyCustomManifests      = "custom_manifests"
)

// readCacheWindow is how long a Get may serve the in-memory copy before
// re-reading config.json.
const readCacheWindow = 5 * time.Second

// defaults covers every recognized key. Missing keys are injected on every
// read, not only on first initialization, so a config file that predates a
// key still yields its documented default.
var defaults = map[string]interface{}{
	KeyVerifyChecksums:      true,
	KeyForceRemoteDownloads: true,
	KeyAutoCheckUpdates:     true,
	KeyAutoInstallUpdates:   true,
	KeyUpdateCheckInterval:  30,
	KeyManifestCacheMaxAge:  60,
	KeyCacheTimeoutDays:     30,
	KeyLastUpdateCheck:      "",
	KeyCustomManifestURL:    "",
	KeyUsePublicRepository:  true,
	KeyCustomManifests:      map[string]interface{}{},
}

// CustomManifest is one registered custom manifest source.
type CustomManifest struct {
	Kind            string `json:"kind"`
	Location        string `json:"location"`
	VerifyChecksums *bool  `json:"verify_checksums,omitempty"`
}

// Store reads and writes the persisted configuration. The read cache is
// mutex-guarded: a reload racing a cache expiry costs one extra disk read,
// never corrupt data.
type Store struct {
	home string

	mu     sync.Mutex
	cached map[string]interface{}
	readAt time.Time
}

// New creates a store rooted at the given depot home directory.
func New(home string) *Store {
	return &Store{home: home}
}

// Open creates a store rooted at the default depot home, creating it if needed.
func Open() (*Store, error) {
	home, err := EnsureDepotHome()
	if err != nil {
		return nil, err
	}
	return New(home), nil
}

// Home returns the depot home directory this store is rooted at.
func (s *Store) Home() string {
	return s.home
}

// Get returns the full configuration map. A copy read within the last
// readCacheWindow is served from memory unless forceReload is set.
func (s *Store) Get(forceReload bool) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(forceReload)
}

func (s *Store) getLocked(forceReload bool) (map[string]interface{}, error) {
	if !forceReload && s.cached != nil && time.Since(s.readAt) < readCacheWindow {
		return copyMap(s.cached), nil
	}

	v := viper.New()
	for key, def := range defaults {
		v.SetDefault(key, def)
	}

	v.SetConfigFile(s.ConfigPath())
	v.SetConfigType("json")

	v.SetEnvPrefix("SCRIPTDEPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyCustomManifestURL, EnvManifestURL, "SCRIPTDEPOT_CUSTOM_MANIFEST_URL")
	_ = v.BindEnv(KeyForceRemoteDownloads, EnvNoLocal, "SCRIPTDEPOT_FORCE_REMOTE_DOWNLOADS")

	// Missing file is fine: defaults and env still apply.
	_ = v.ReadInConfig()

	m := make(map[string]interface{}, len(defaults))
	for key := range defaults {
		m[key] = v.Get(key)
	}
	// Carry unrecognized keys from the file so Set never drops them.
	for key, val := range v.AllSettings() {
		if _, ok := m[key]; !ok {
			m[key] = val
		}
	}

	s.cached = m
	s.readAt = time.Now()
	return copyMap(m), nil
}

// Set merges a single key into the configuration and writes the full map back
// to disk immediately.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getLocked(true)
	if err != nil {
		return err
	}
	m[key] = value

	if err := s.writeLocked(m); err != nil {
		return err
	}
	return nil
}

func (s *Store) writeLocked(m map[string]interface{}) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := safeio.WriteFileAtomic(s.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	s.cached = copyMap(m)
	s.readAt = time.Now()
	return nil
}

// Invalidate clears the read cache, forcing the next Get to hit disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.readAt = time.Time{}
}

// CustomManifests returns the registered custom manifest sources by name.
func (s *Store) CustomManifests() (map[string]CustomManifest, error) {
	m, err := s.Get(false)
	if err != nil {
		return nil, err
	}

	out := make(map[string]CustomManifest)
	raw, ok := m[KeyCustomManifests].(map[string]interface{})
	if !ok {
		return out, nil
	}
	for name, entry := range raw {
		spec, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		cm := CustomManifest{
			Kind:     StringValue(spec, "kind"),
			Location: StringValue(spec, "location"),
		}
		if v, ok := spec["verify_checksums"]; ok {
			b := coerceBool(v)
			cm.VerifyChecksums = &b
		}
		out[name] = cm
	}
	return out, nil
}

// RegisterCustomManifest adds or replaces a named custom manifest source.
func (s *Store) RegisterCustomManifest(name string, cm CustomManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getLocked(true)
	if err != nil {
		return err
	}
	registry, ok := m[KeyCustomManifests].(map[string]interface{})
	if !ok {
		registry = map[string]interface{}{}
	}
	spec := map[string]interface{}{
		"kind":     cm.Kind,
		"location": cm.Location,
	}
	if cm.VerifyChecksums != nil {
		spec["verify_checksums"] = *cm.VerifyChecksums
	}
	registry[name] = spec
	m[KeyCustomManifests] = registry

	return s.writeLocked(m)
}

// RemoveCustomManifest deletes a named custom manifest source. Returns false
// if the name was not registered.
func (s *Store) RemoveCustomManifest(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getLocked(true)
	if err != nil {
		return false, err
	}
	registry, ok := m[KeyCustomManifests].(map[string]interface{})
	if !ok {
		return false, nil
	}
	if _, ok := registry[name]; !ok {
		return false, nil
	}
	delete(registry, name)
	m[KeyCustomManifests] = registry

	return true, s.writeLocked(m)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BoolValue coerces a config value to bool. Environment overrides arrive as
// strings, JSON values as bool.
func BoolValue(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	return coerceBool(v)
}

func coerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			// NO_LOCAL-style flags treat any non-empty value as set.
			return t != ""
		}
		return b
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

// IntValue coerces a config value to int. JSON numbers decode as float64.
func IntValue(m map[string]interface{}, key string) int {
	switch t := m[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// StringValue coerces a config value to string.
func StringValue(m map[string]interface{}, key string) string {
	switch t := m[key].(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
