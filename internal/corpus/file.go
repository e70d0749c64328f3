package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads a corpus from a YAML or JSON file, chosen by extension.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) (*Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %s: %w", s.Path, err)
	}
	c, err := Decode(data, filepath.Ext(s.Path))
	if err != nil {
		return nil, fmt.Errorf("decoding corpus file %s: %w", s.Path, err)
	}
	return c, nil
}

// Decode parses corpus bytes. ext selects JSON for ".json" and YAML otherwise.
func Decode(data []byte, ext string) (*Corpus, error) {
	var c Corpus
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &c)
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}
