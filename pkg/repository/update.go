package repository

import (
	"time"

	"github.com/fulmenhq/scriptdepot/pkg/configstore"
	"github.com/fulmenhq/scriptdepot/pkg/logger"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"
)

// Detector compares cached entries against the merged remote view and
// throttles repeated checks through the persisted last_update_check
// timestamp. Update state is always derived at query time by comparing the
// live cache file's digest to the current manifest entry; it is never
// stored.
type Detector struct {
	engine *Engine
	cfg    *configstore.Store
}

// NewDetector creates a detector over an engine.
func NewDetector(engine *Engine) *Detector {
	return &Detector{engine: engine, cfg: engine.cfg}
}

// IsCheckDue reports whether enough time has passed since the last check.
// A missing or unparseable timestamp fails open toward checking.
func (d *Detector) IsCheckDue(now time.Time) bool {
	m, err := d.cfg.Get(false)
	if err != nil {
		return true
	}
	last := configstore.StringValue(m, configstore.KeyLastUpdateCheck)
	if last == "" {
		return true
	}
	stamp, err := time.Parse(time.RFC3339, last)
	if err != nil {
		logger.Debug("unparseable last_update_check, forcing a check",
			logger.String("value", last))
		return true
	}
	interval := time.Duration(configstore.IntValue(m, configstore.KeyUpdateCheckInterval)) * time.Minute
	return !now.Before(stamp.Add(interval))
}

// CheckForUpdates performs a fresh merged-entries load (bypassing the
// manifest cache window) and counts cached entries whose local digest no
// longer matches the manifest checksum. last_update_check is stamped
// unconditionally, whether or not the underlying fetch succeeded.
//
// When auto_install_updates is enabled and updates were found, UpdateAll
// runs immediately and the reported count is zero: the auto-install is
// considered to have resolved the pending updates. The real count is still
// logged.
func (d *Detector) CheckForUpdates() (int, error) {
	defer d.stampLastCheck()

	outdated, err := d.availableUpdates()
	if err != nil {
		return 0, err
	}
	count := len(outdated)
	if count == 0 {
		return 0, nil
	}

	m, cfgErr := d.cfg.Get(false)
	if cfgErr == nil && configstore.BoolValue(m, configstore.KeyAutoInstallUpdates) {
		updated, failed := d.engine.UpdateAll()
		logger.Info("auto-installed pending updates",
			logger.Int("available", count),
			logger.Int("updated", updated),
			logger.Int("failed", failed))
		return 0, nil
	}

	return count, nil
}

// ListAvailableUpdates returns the full entry objects with pending updates,
// for display purposes.
func (d *Detector) ListAvailableUpdates() ([]manifest.Entry, error) {
	return d.availableUpdates()
}

func (d *Detector) availableUpdates() ([]manifest.Entry, error) {
	entries, err := d.engine.mergedEntries(true)
	if err != nil {
		return nil, err
	}

	var outdated []manifest.Entry
	for _, entry := range entries {
		if entry.Checksum == "" {
			continue
		}
		category, ok := d.cachedCategory(entry)
		if !ok {
			continue
		}
		digest, err := d.engine.cache.Digest(category, entry.FileName)
		if err != nil {
			logger.Debug("failed to digest cached script",
				logger.String("id", entry.ID), logger.Err(err))
			continue
		}
		if digest != entry.Checksum {
			outdated = append(outdated, entry)
		}
	}
	return outdated, nil
}

func (d *Detector) cachedCategory(entry manifest.Entry) (string, bool) {
	if _, ok := d.engine.cache.PathFor(string(entry.Category), entry.FileName); ok {
		return string(entry.Category), true
	}
	if _, category, ok := d.engine.cache.FallbackLookup(entry.FileName); ok {
		return category, true
	}
	return "", false
}

func (d *Detector) stampLastCheck() {
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := d.cfg.Set(configstore.KeyLastUpdateCheck, stamp); err != nil {
		logger.Warn("failed to persist last_update_check", logger.Err(err))
	}
}
