package moderation

import (
	"bourracho/errors"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed words.yaml
var defaultWords []byte

// CensoredData carries the result of the loading process including metadata for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

type wordsFile struct {
	Languages map[string][]string `yaml:"languages"`
}

// LoadDefault parses the embedded word lists.
func LoadDefault() (*CensoredData, error) {
	return Parse(defaultWords)
}

// LoadFile parses the word lists of path, falling back to the embedded
// lists when path is empty.
func LoadFile(path string) (*CensoredData, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read censored words %s: %w", path, err)
	}
	return Parse(data)
}

// Parse reads a YAML document of words grouped by language.
// Words are trimmed and deduplicated across languages.
func Parse(data []byte) (*CensoredData, error) {
	var file wordsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse censored words: %w", err)
	}

	languages := lo.Keys(file.Languages)
	sort.Strings(languages)

	var words []string
	for _, lang := range languages {
		for _, word := range file.Languages[lang] {
			if w := strings.TrimSpace(word); w != "" {
				words = append(words, w)
			}
		}
	}
	words = lo.Uniq(words)
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return &CensoredData{Words: words, Languages: languages}, nil
}
