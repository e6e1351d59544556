package runtime

import (
	"bufio"
	"embed"
	"io/fs"
	"path"
	"slices"
	"strings"

	"panel-lab/errors"

	"github.com/samber/lo"
)

//go:embed censored/*.txt
var censoredFolder embed.FS

// CensoredFolder is the embedded per-language dictionary set, one word per
// line. Blank lines and lines starting with '#' are skipped.
func CensoredFolder() fs.FS { return censoredFolder }

// CensoredData is every dictionary merged, deduplicated and sorted, plus the
// number of words each language contributed.
type CensoredData struct {
	Words     []string
	Languages []string
	PerLang   map[string]int
}

type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll reads every "<lang>.txt" file of dir.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}
	dictionaries := lo.Filter(entries, func(e fs.DirEntry, _ int) bool {
		return !e.IsDir() && path.Ext(e.Name()) == ".txt"
	})

	data := &CensoredData{PerLang: make(map[string]int)}
	for _, entry := range dictionaries {
		lang := strings.TrimSuffix(entry.Name(), ".txt")
		words, err := l.readWords(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		data.Languages = append(data.Languages, lang)
		data.PerLang[lang] = len(words)
		data.Words = append(data.Words, words...)
	}

	data.Words = lo.Uniq(data.Words)
	if len(data.Words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	slices.Sort(data.Words)
	return data, nil
}

func (l *CensoredLoader) readWords(name string) ([]string, error) {
	f, err := l.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// TrimSpace also drops the \r of CRLF files
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
