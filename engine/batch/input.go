package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"

	"github.com/compozy/productgen/engine/generation"
	"github.com/compozy/productgen/engine/preprocess"
)

// Item is one unit of work. Index is its position in the input.
type Item struct {
	Index  int
	ID     string
	Source preprocess.Source
	Hints  []generation.Hint
}

// InvalidInput is an input entry that could not become an item.
type InvalidInput struct {
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Line   int    `json:"line"           yaml:"line"`
	Value  string `json:"value"          yaml:"value"`
	Reason string `json:"reason"         yaml:"reason"`
}

// Input is a parsed batch file.
type Input struct {
	Items   []Item
	Invalid []InvalidInput
}

// ErrNoItems is returned for inputs without a single usable entry.
var ErrNoItems = errors.New("batch input contains no items")

var idColumns = []string{"id", "sku", "name"}

// ReadFile parses path by extension: .csv, .json, otherwise one URL per line.
func ReadFile(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(bytes.NewReader(data))
	case ".json":
		return ReadJSON(data)
	default:
		return ReadURLs(bytes.NewReader(data))
	}
}

// ReadFiles expands doublestar patterns (`inputs/**/*.csv`) and reads every
// matched file, in lexical order per pattern. With more than one file, item ids are prefixed with
// the file name so they stay unique.
func ReadFiles(patterns ...string) (*Input, error) {
	var paths []string
	seen := map[string]bool{}
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// a literal path that does not exist reports a read error below
			matches = []string{pattern}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	if len(paths) == 1 {
		return ReadFile(paths[0])
	}
	out := &Input{}
	for _, path := range paths {
		in, err := ReadFile(path)
		if errors.Is(err, ErrNoItems) {
			continue
		}
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		for _, item := range in.Items {
			item.Index = len(out.Items)
			item.ID = name + ":" + item.ID
			out.Items = append(out.Items, item)
		}
		for _, inv := range in.Invalid {
			inv.File = path
			out.Invalid = append(out.Invalid, inv)
		}
	}
	if len(out.Items) == 0 {
		return nil, ErrNoItems
	}
	return out, nil
}

// ReadCSV turns every row into an item whose text is the header and the row
// encoded as CSV. Non-empty cells become column hints.
func ReadCSV(r io.Reader) (*Input, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoItems
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	idCol := findIDColumn(header)
	in := &Input{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}
		text, err := encodeCSV(header, row)
		if err != nil {
			return nil, err
		}
		item := Item{Index: len(in.Items), Source: preprocess.Source{Text: text}}
		for i, value := range row {
			value = strings.TrimSpace(value)
			if i >= len(header) || value == "" {
				continue
			}
			item.Hints = append(item.Hints, generation.Hint{Column: header[i], Value: value})
		}
		if idCol >= 0 && idCol < len(row) {
			item.ID = strings.TrimSpace(row[idCol])
		}
		in.Items = append(in.Items, item)
	}
	return finish(in)
}

func findIDColumn(header []string) int {
	for _, name := range idColumns {
		for i, col := range header {
			if strings.EqualFold(col, name) {
				return i
			}
		}
	}
	return -1
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func encodeCSV(header, row []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll([][]string{header, row}); err != nil {
		return "", fmt.Errorf("failed to encode csv row: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ReadJSON uses the first array found depth-first. Each element's raw JSON
// is the item text.
func ReadJSON(data []byte) (*Input, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("batch input is not valid JSON")
	}
	arr, ok := firstArray(gjson.ParseBytes(data))
	if !ok {
		return nil, ErrNoItems
	}
	in := &Input{}
	arr.ForEach(func(_, value gjson.Result) bool {
		item := Item{Index: len(in.Items), Source: preprocess.Source{Text: value.Raw}}
		if value.IsObject() {
			for _, key := range idColumns {
				if v := value.Get(key); v.Exists() && v.String() != "" {
					item.ID = v.String()
					break
				}
			}
		}
		in.Items = append(in.Items, item)
		return true
	})
	return finish(in)
}

func firstArray(v gjson.Result) (gjson.Result, bool) {
	if v.IsArray() {
		return v, true
	}
	if !v.IsObject() {
		return gjson.Result{}, false
	}
	var found gjson.Result
	var ok bool
	v.ForEach(func(_, child gjson.Result) bool {
		found, ok = firstArray(child)
		return !ok
	})
	return found, ok
}

// ReadURLs reads one URL per line. Blank lines and # comments are ignored;
// lines that are not absolute http(s) or file URLs are reported as invalid.
func ReadURLs(r io.Reader) (*Input, error) {
	in := &Input{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		value := strings.TrimSpace(scanner.Text())
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		if reason := checkURL(value); reason != "" {
			in.Invalid = append(in.Invalid, InvalidInput{Line: line, Value: value, Reason: reason})
			continue
		}
		in.Items = append(in.Items, Item{
			Index:  len(in.Items),
			ID:     value,
			Source: preprocess.Source{URL: value},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url list: %w", err)
	}
	if len(in.Items) == 0 && len(in.Invalid) > 0 {
		return in, nil
	}
	return finish(in)
}

func checkURL(value string) string {
	u, err := url.ParseRequestURI(value)
	if err != nil {
		return "not a valid URL"
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "missing host"
		}
	case "file":
		if u.Path == "" {
			return "missing path"
		}
	default:
		return "unsupported scheme " + strconv.Quote(u.Scheme)
	}
	return ""
}

func finish(in *Input) (*Input, error) {
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}
	for i := range in.Items {
		if in.Items[i].ID == "" {
			in.Items[i].ID = strconv.Itoa(in.Items[i].Index + 1)
		}
	}
	return in, nil
}

// FromTexts builds items from literal texts.
func FromTexts(texts ...string) []Item {
	items := make([]Item, len(texts))
	for i, text := range texts {
		items[i] = Item{Index: i, ID: strconv.Itoa(i + 1), Source: preprocess.Source{Text: text}}
	}
	return items
}
