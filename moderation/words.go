package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
)

//go:embed censored/*.txt
var censoredFS embed.FS

// DefaultWords returns the embedded dictionary: one word per line,
// blank lines and '#' comments ignored, duplicates collapsed.
func DefaultWords() ([]string, error) {
	return LoadWords(censoredFS, "censored")
}

// LoadWords reads every .txt file under dir in the given filesystem.
func LoadWords(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var words []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			word = strings.ToLower(word)
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			words = append(words, word)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return words, nil
}
