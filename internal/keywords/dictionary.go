package keywords

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dictionaries/*.yaml
var dictionariesFS embed.FS

// Dictionary holds the reference vocabularies the extractor matches against.
// Entries may be multi-word phrases; matching is case-insensitive and the
// entry's spelling here is the canonical form reported in results.
type Dictionary struct {
	Skills        []string `yaml:"skills"`
	Industries    []string `yaml:"industries"`
	Organizations []string `yaml:"organizations"`
}

// DefaultDictionary loads the embedded vocabularies shipped with the binary.
func DefaultDictionary() (Dictionary, error) {
	data, err := dictionariesFS.ReadFile("dictionaries/default.yaml")
	if err != nil {
		return Dictionary{}, fmt.Errorf("reading embedded dictionary: %w", err)
	}
	return parseDictionary(data)
}

// LoadDictionary reads every *.yaml file in dir and merges the vocabularies,
// allowing operators to extend or replace the embedded defaults without a
// rebuild. Files are read in lexical order; duplicate entries collapse.
func LoadDictionary(dir string) (Dictionary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Dictionary{}, fmt.Errorf("reading dictionary directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var merged Dictionary
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return Dictionary{}, fmt.Errorf("reading dictionary %s: %w", name, err)
		}
		d, err := parseDictionary(data)
		if err != nil {
			return Dictionary{}, fmt.Errorf("parsing dictionary %s: %w", name, err)
		}
		merged.Skills = append(merged.Skills, d.Skills...)
		merged.Industries = append(merged.Industries, d.Industries...)
		merged.Organizations = append(merged.Organizations, d.Organizations...)
	}

	merged.Skills = dedupe(merged.Skills)
	merged.Industries = dedupe(merged.Industries)
	merged.Organizations = dedupe(merged.Organizations)
	return merged, nil
}

func parseDictionary(data []byte) (Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Dictionary{}, fmt.Errorf("unmarshalling dictionary: %w", err)
	}
	return d, nil
}

// dedupe removes duplicates (case-insensitive) preserving first spelling.
func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
