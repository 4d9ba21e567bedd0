package statement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/tallysync/internal/domain"
)

var (
	// ErrMalformed is returned when an upload is not a usable record set.
	ErrMalformed = errors.New("malformed statement")

	// ErrUnsupportedFormat is returned for file types other than JSON and XLSX.
	ErrUnsupportedFormat = errors.New("unsupported statement format")
)

// Records is a parsed upload: statement lines in order plus the summary block.
type Records struct {
	Transactions []domain.Fields
	Summary      map[string]any
}

// Parse picks a parser from the file extension.
func Parse(filename string, r io.Reader) (*Records, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return ParseJSON(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("Parse: %q: %w", filename, ErrUnsupportedFormat)
	}
}

// ParseJSON reads the extractor's page layout:
//
//	{"page_1": {"transactions": [{...}, ...], "summary": {...}}, "page_2": ...}
//
// Transactions from every page are concatenated in page order. The summary
// comes from the first page that has one.
func ParseJSON(r io.Reader) (*Records, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ParseJSON: reading body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ParseJSON: %w: %v", ErrMalformed, err)
	}

	pages := pageKeys(doc)
	if len(pages) == 0 {
		return nil, fmt.Errorf("ParseJSON: %w: no page_N sections", ErrMalformed)
	}

	records := &Records{}
	for _, key := range pages {
		var page struct {
			Transactions []map[string]any `json:"transactions"`
			Summary      map[string]any   `json:"summary"`
		}
		pdec := json.NewDecoder(bytes.NewReader(doc[key]))
		pdec.UseNumber()
		if err := pdec.Decode(&page); err != nil {
			return nil, fmt.Errorf("ParseJSON: %w: %s: %v", ErrMalformed, key, err)
		}

		for _, txn := range page.Transactions {
			records.Transactions = append(records.Transactions, toFields(txn))
		}
		if records.Summary == nil && page.Summary != nil {
			records.Summary = page.Summary
		}
	}

	return records, nil
}

// pageKeys returns the page_N keys sorted by N.
func pageKeys(doc map[string]json.RawMessage) []string {
	type numbered struct {
		key string
		n   int
	}
	var found []numbered
	for k := range doc {
		if !strings.HasPrefix(k, "page_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(k, "page_"))
		if err != nil {
			continue
		}
		found = append(found, numbered{key: k, n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	keys := make([]string, len(found))
	for i, f := range found {
		keys[i] = f.key
	}
	return keys
}

func toFields(m map[string]any) domain.Fields {
	f := make(domain.Fields, len(m))
	for k, v := range m {
		f[k] = stringify(v)
	}
	return f
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
