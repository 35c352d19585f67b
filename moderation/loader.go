package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"huddle/errors"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
)

//go:embed wordlists/*.txt
var wordlists embed.FS

// Dictionary is the merged content of every word list found in a directory.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every "<lang>.txt" file of dir, one word per line.
// Blank lines are skipped and duplicates across languages are merged.
func LoadDictionary(fsys fs.FS, dir string) (*Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var words, languages []string
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// Scanner copes with \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				words = append(words, strings.ToLower(line))
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	words = lo.Uniq(words)
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	slices.Sort(words)
	return &Dictionary{Words: words, Languages: languages}, nil
}

// DefaultDictionary returns the word lists compiled into the binary.
func DefaultDictionary() (*Dictionary, error) {
	return LoadDictionary(wordlists, "wordlists")
}
