package posting

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// ExcludedPostings is the on-disk list of postings the operator never wants to see again.
type ExcludedPostings struct {
	Items []*ExcludedPosting
}

type ExcludedPosting struct {
	Key        string
	URL        string
	Company    string
	Title      string
	ExcludedAt time.Time
}

// ReadExcludedFile loads the exclude file. A missing or empty file is an empty list.
func ReadExcludedFile(path string) (*ExcludedPostings, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedPostings{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedPostings{}, nil
	}

	var excluded ExcludedPostings
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedPostings) Append(other *ExcludedPostings) {
	e.Items = append(e.Items, other.Items...)
}

func (e *ExcludedPostings) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		keys[item.Key] = struct{}{}
	}
	return keys
}

// ToFile rewrites the exclude file.
func (e *ExcludedPostings) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// ToExcluded converts the list into exclude-file entries stamped with now.
func (ps *Postings) ToExcluded(now time.Time) *ExcludedPostings {
	excluded := &ExcludedPostings{}
	for _, p := range ps.Items {
		excluded.Items = append(excluded.Items, &ExcludedPosting{
			Key:        p.Key(),
			URL:        p.ApplyURL,
			Company:    p.Company,
			Title:      p.Title,
			ExcludedAt: now,
		})
	}
	return excluded
}
