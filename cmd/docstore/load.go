package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"gopkg.in/yaml.v3"

	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// loadWorkers bounds how many seed files are decoded at once.
const loadWorkers = 4

// loadFiles decodes every seed file concurrently and returns the documents
// in file order, then document order within a file.
func loadFiles(paths []string) ([]storage.Document, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(loadWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to start loader pool: %w", err)
	}
	defer pool.Release()

	results := make([][]storage.Document, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		i, path := i, path
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = loadFile(path)
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var docs []storage.Document
	for i := range paths {
		if errs[i] != nil {
			return nil, errs[i]
		}
		docs = append(docs, results[i]...)
	}
	return docs, nil
}

// loadFile reads a JSON or YAML file holding one document or an array of
// documents. The format follows the extension; anything else is JSON.
func loadFile(path string) ([]storage.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	docs, err := toDocuments(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

func toDocuments(raw interface{}) ([]storage.Document, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return []storage.Document{v}, nil
	case []interface{}:
		docs := make([]storage.Document, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a document", i, item)
			}
			docs = append(docs, m)
		}
		return docs, nil
	}
	return nil, fmt.Errorf("expected a document or an array of documents, got %T", raw)
}
