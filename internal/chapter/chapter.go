// Package chapter discovers, orders, reads and writes chapter files.
package chapter

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maruel/natural"

	"github.com/valpere/chaptran/internal/markdown"
)

// Extensions lists the chapter source formats, lower case.
var Extensions = []string{".txt", ".md", ".html", ".htm"}

// Unit is one chapter source file. Name is its identity within a novel.
type Unit struct {
	Name string
	Path string
}

// IsHTML reports whether the source is an HTML document.
func (u Unit) IsHTML() bool {
	ext := strings.ToLower(filepath.Ext(u.Name))
	return ext == ".html" || ext == ".htm"
}

// IsMarkdown reports whether the source is Markdown.
func (u Unit) IsMarkdown() bool {
	return strings.EqualFold(filepath.Ext(u.Name), ".md")
}

// OutputName is the file name of the translated artifact. HTML sources are
// written as plain text.
func (u Unit) OutputName() string {
	if u.IsHTML() {
		return strings.TrimSuffix(u.Name, filepath.Ext(u.Name)) + ".txt"
	}
	return u.Name
}

// List returns the chapter files directly under dir in natural order, so
// chapter2 sorts before chapter10. Hidden files are ignored.
func List(dir string) ([]Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter directory: %w", err)
	}

	var units []Unit
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !supported(name) {
			continue
		}
		units = append(units, Unit{Name: name, Path: filepath.Join(dir, name)})
	}
	Sort(units)
	return units, nil
}

// Sort orders units naturally by name, ignoring case; ties fall back to the
// exact name so the order is total.
func Sort(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		a, b := strings.ToLower(units[i].Name), strings.ToLower(units[j].Name)
		if a != b {
			return natural.Less(a, b)
		}
		return natural.Less(units[i].Name, units[j].Name)
	})
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Read returns the chapter text. HTML is reduced to its paragraph text.
func Read(u Unit) (string, error) {
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read chapter %s: %w", u.Name, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !u.IsHTML() {
		return string(data), nil
	}
	text, err := ExtractHTML(data)
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter %s: %w", u.Name, err)
	}
	return text, nil
}

// ReadPlain returns the chapter prose without markup. Markdown sources are
// rendered and reduced like HTML; plain text is returned as is.
func ReadPlain(u Unit) (string, error) {
	if !u.IsMarkdown() {
		return Read(u)
	}
	text, err := Read(u)
	if err != nil {
		return "", err
	}
	plain, err := ExtractHTML(markdown.ToHTML([]byte(text)))
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter %s: %w", u.Name, err)
	}
	return plain, nil
}

// ExtractHTML returns the text of every <p> in document order, separated by
// blank lines. A document without paragraphs yields its body text.
func ExtractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var paras []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(paras, "\n\n"), nil
}

// OutputPath is where the translation of u is written under outDir.
func OutputPath(outDir string, u Unit) string {
	return filepath.Join(outDir, u.OutputName())
}

// Exists reports whether the translation of u is already on disk.
func Exists(outDir string, u Unit) bool {
	_, err := os.Stat(OutputPath(outDir, u))
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// Write stores a translation atomically: a partial file never looks like a
// finished chapter to a later run.
func Write(outDir string, u Unit, text string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(outDir, ".chapter-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	_ = tmp.Chmod(0644)

	if _, err := tmp.WriteString(text + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write chapter %s: %w", u.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write chapter %s: %w", u.Name, err)
	}
	if err := os.Rename(tmp.Name(), OutputPath(outDir, u)); err != nil {
		return fmt.Errorf("failed to write chapter %s: %w", u.Name, err)
	}
	return nil
}
