package models

import (
	"encoding/json"
	"strings"
)

// Recipe represents one catalog entry. The extraction model owns most
// of the schema, so only the fields the backend reads or writes are
// declared; everything else rides through Extra untouched and survives
// load-modify-save cycles verbatim.
type Recipe struct {
	Key                string   `json:"key,omitempty"`
	Title              string   `json:"Title"`
	UploadedAt         string   `json:"uploadedAt,omitempty"`
	ImageURL           string   `json:"image_url,omitempty"`
	ImageSearchResults []string `json:"image_search_results,omitempty"`

	// IsNew is computed at read time, never stored
	IsNew bool `json:"is_new,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// recipeAlias avoids recursing into the custom (un)marshalers.
type recipeAlias Recipe

var recipeFields = []string{
	"key", "Title", "uploadedAt", "image_url", "image_search_results", "is_new",
}

func (r *Recipe) UnmarshalJSON(data []byte) error {
	var alias recipeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, field := range recipeFields {
		delete(raw, field)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	} else {
		alias.Extra = nil
	}

	*r = Recipe(alias)
	return nil
}

func (r Recipe) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recipeAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+len(recipeFields))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}

	return json.Marshal(merged)
}

// NormalizeTitle canonicalizes a title for duplicate comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Field returns a raw passthrough field by name, nil when absent.
func (r Recipe) Field(name string) json.RawMessage {
	return r.Extra[name]
}
