package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/scriptdepot/pkg/logger"
	"github.com/fulmenhq/scriptdepot/pkg/manifest"
	"github.com/fulmenhq/scriptdepot/pkg/safeio"
)

// Suggestion is the structured output of an external categorization helper:
// a proposed category and description for one script.
type Suggestion struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ApplySuggestion persists a helper's suggestion into the manifest entry it
// refers to. Only entries from custom-local-file sources can be rewritten;
// remote manifests are not ours to edit.
func (e *Engine) ApplySuggestion(s Suggestion) error {
	if s.ID == "" {
		return fmt.Errorf("suggestion has no id")
	}
	if s.Category != "" && !manifest.Category(s.Category).SafeDirName() {
		return fmt.Errorf("suggested category %q is not usable", s.Category)
	}

	entry, ok := e.FindByID(s.ID)
	if !ok {
		return &NotFoundError{ID: s.ID}
	}

	src, err := e.sourceByName(entry.SourceName)
	if err != nil {
		return err
	}
	if src.Kind != manifest.SourceCustomLocalFile {
		return fmt.Errorf("entry %q comes from source %q (%s); only local-file manifests accept suggestions",
			s.ID, src.Name, src.Kind)
	}

	location, err := safeio.CleanUserPath(src.Location)
	if err != nil {
		return fmt.Errorf("rejecting manifest path %s: %w", src.Location, err)
	}
	data, err := os.ReadFile(location) // #nosec G304 -- path cleaned and traversal rejected above
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", location, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &manifest.CorruptError{Source: src.Name, Reason: "invalid JSON", Wrapped: err}
	}

	if !rewriteScript(doc, s) {
		return &NotFoundError{ID: s.ID}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := safeio.WriteFileAtomic(location, out, 0o644); err != nil {
		return &WriteError{ID: s.ID, Path: location, Wrapped: err}
	}

	logger.Info("applied categorization suggestion",
		logger.String("id", s.ID),
		logger.String("category", s.Category))
	return nil
}

func (e *Engine) sourceByName(name string) (manifest.Source, error) {
	sources, err := e.Sources()
	if err != nil {
		return manifest.Source{}, err
	}
	for _, src := range sources {
		if src.Name == name {
			return src, nil
		}
	}
	return manifest.Source{}, fmt.Errorf("source %q is no longer configured", name)
}

// rewriteScript updates the matching script object in place, handling both
// the flat-list and nested-by-category manifest shapes. In the nested shape
// a category change moves the entry to the new category's list.
func rewriteScript(doc map[string]interface{}, s Suggestion) bool {
	switch scripts := doc["scripts"].(type) {
	case []interface{}:
		for _, item := range scripts {
			m, ok := item.(map[string]interface{})
			if !ok || m["id"] != s.ID {
				continue
			}
			applyFields(m, s)
			return true
		}
	case map[string]interface{}:
		for categoryKey, rawList := range scripts {
			list, ok := rawList.([]interface{})
			if !ok {
				continue
			}
			for i, item := range list {
				m, ok := item.(map[string]interface{})
				if !ok || m["id"] != s.ID {
					continue
				}
				if s.Description != "" {
					m["description"] = s.Description
				}
				if s.Category != "" && s.Category != categoryKey {
					scripts[categoryKey] = append(list[:i], list[i+1:]...)
					target, _ := scripts[s.Category].([]interface{})
					scripts[s.Category] = append(target, m)
				}
				return true
			}
		}
	}
	return false
}

func applyFields(m map[string]interface{}, s Suggestion) {
	if s.Category != "" {
		m["category"] = s.Category
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
}
