package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

// KeywordList is the search keyword file. The file may be YAML or JSON.
type KeywordList struct {
	Keywords     []string `yaml:"keywords"`
	CurrentIndex int      `yaml:"current_index"`
}

// LoadKeywords reads the keyword file. Blank entries are dropped; an empty
// list is reported as models.ErrNoKeywords.
func LoadKeywords(path string) (KeywordList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordList{}, fmt.Errorf("failed to read keywords file %s: %w", path, err)
	}
	return ParseKeywords(data)
}

func ParseKeywords(data []byte) (KeywordList, error) {
	var list KeywordList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return KeywordList{}, fmt.Errorf("failed to parse keywords: %w", err)
	}

	cleaned := list.Keywords[:0]
	for _, kw := range list.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	list.Keywords = cleaned

	if len(list.Keywords) == 0 {
		return KeywordList{}, models.ErrNoKeywords
	}
	if list.CurrentIndex < 0 || list.CurrentIndex >= len(list.Keywords) {
		list.CurrentIndex = 0
	}
	return list, nil
}
