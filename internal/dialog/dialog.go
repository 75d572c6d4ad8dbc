// Package dialog resolves localized system phrases. Phrase tables are
// embedded YAML files, one per language code.
package dialog

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phrases/*.yaml
var phraseFS embed.FS

const fallbackLang = "en-us"

var (
	loadOnce sync.Once
	tables   map[string]map[string]string
	loadErr  error
)

func load() {
	tables = make(map[string]map[string]string)
	entries, err := fs.ReadDir(phraseFS, "phrases")
	if err != nil {
		loadErr = fmt.Errorf("read embedded phrases: %w", err)
		return
	}
	for _, entry := range entries {
		lang := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := phraseFS.ReadFile("phrases/" + entry.Name())
		if err != nil {
			loadErr = fmt.Errorf("read %s: %w", entry.Name(), err)
			return
		}
		table := map[string]string{}
		if err := yaml.Unmarshal(raw, &table); err != nil {
			loadErr = fmt.Errorf("parse %s: %w", entry.Name(), err)
			return
		}
		tables[strings.ToLower(lang)] = table
	}
}

// Get returns the phrase for key in lang, falling back to the language family
// (e.g. "en" for "en-gb"), then to en-us, then to the key itself so callers
// always have something speakable.
func Get(lang, key string) string {
	loadOnce.Do(load)
	if loadErr != nil {
		return key
	}

	lang = strings.ToLower(lang)
	for _, candidate := range []string{lang, baseLang(lang), fallbackLang} {
		if candidate == "" {
			continue
		}
		if table, ok := tables[candidate]; ok {
			if phrase, ok := table[key]; ok {
				return phrase
			}
		}
	}
	return key
}

func baseLang(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return ""
}
