package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kartikbazzad/bunbase/docstore"
	"github.com/kartikbazzad/bunbase/docstore/storage"
)

// session runs verbs against one collection. The CLI verbs and the shell
// share it.
type session struct {
	db   *docstore.Database
	coll *docstore.Collection
	out  io.Writer
}

// parseIndexSpec parses "type:attr,attr" (type defaults to btree).
func parseIndexSpec(spec string) (docstore.IndexType, string, error) {
	typ, attrs, found := strings.Cut(spec, ":")
	if !found {
		return docstore.BTree, spec, nil
	}
	t, err := docstore.ParseIndexType(typ)
	if err != nil {
		return "", "", err
	}
	return t, attrs, nil
}

// parseSort parses "field" or "field:dir" where dir is asc, desc, 1 or -1.
func parseSort(spec string, opts *docstore.QueryOptions) error {
	if spec == "" {
		return nil
	}
	field, dir, _ := strings.Cut(spec, ":")
	opts.SortField = field
	switch strings.ToLower(dir) {
	case "", "asc", "1":
	case "desc", "-1":
		opts.SortDesc = true
	default:
		return fmt.Errorf("invalid sort direction %q", dir)
	}
	return nil
}

// parseJSONArgs decodes the whitespace-separated JSON values in s.
func parseJSONArgs(s string) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var out []map[string]interface{}
	for {
		var m map[string]interface{}
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON argument: %w", err)
		}
		out = append(out, m)
	}
}

func (s *session) ensureIndexes(specs []string) error {
	for _, spec := range specs {
		typ, attrs, err := parseIndexSpec(spec)
		if err != nil {
			return err
		}
		if err := s.coll.EnsureIndex(typ, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) seed(docs []storage.Document) error {
	for _, doc := range docs {
		if _, err := s.coll.Save(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) find(q map[string]interface{}, opts docstore.QueryOptions) error {
	docs, err := s.coll.Find(q, opts)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		line, err := doc.Serialize()
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, string(line))
	}
	fmt.Fprintf(s.out, "%s %s\n", humanize.Comma(int64(len(docs))), plural(len(docs), "document"))
	return nil
}

func (s *session) count(q map[string]interface{}) error {
	n, err := s.coll.Count(q)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, humanize.Comma(int64(n)))
	return nil
}

func (s *session) explain(q map[string]interface{}, opts docstore.QueryOptions) error {
	out, err := s.coll.Explain(q, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, out)
	return nil
}

func (s *session) update(q, update map[string]interface{}, upsert bool) error {
	n, err := s.coll.Update(q, update, upsert)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s updated\n", humanize.Comma(int64(n)), plural(n, "document"))
	return nil
}

func (s *session) indexes() {
	for _, info := range s.coll.Indexes() {
		fmt.Fprintf(s.out, "%-6s %-20s %s %s\n", info.Type, info.Name,
			humanize.Comma(int64(info.Documents)), plural(info.Documents, "document"))
	}
}

const shellHelp = `commands:
  find {query} [{"$skip":n,"$limit":n,"$sort":{"field":1}}]
  count {query}
  explain {query} [{conditions}]
  update {query} {update} [upsert]
  save {document}
  remove {query}
  index btree|hash attr[,attr]
  indexes
  commit
  help
  exit`

// exec runs one shell line.
func (s *session) exec(line string) error {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "":
		return nil
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "indexes":
		s.indexes()
		return nil
	case "index":
		typ, attrs, _ := strings.Cut(rest, " ")
		return s.ensureIndexes([]string{typ + ":" + strings.TrimSpace(attrs)})
	case "commit":
		return s.coll.Commit(commandContext())
	}

	upsert := false
	if verb == "update" {
		if trimmed, ok := strings.CutSuffix(rest, "upsert"); ok {
			rest, upsert = strings.TrimSpace(trimmed), true
		}
	}
	args, err := parseJSONArgs(rest)
	if err != nil {
		return err
	}
	arg := func(i int) map[string]interface{} {
		if i < len(args) && args[i] != nil {
			return args[i]
		}
		return map[string]interface{}{}
	}
	opts := func() (docstore.QueryOptions, error) {
		if len(args) < 2 {
			return docstore.QueryOptions{}, nil
		}
		return docstore.OptionsFromMap(args[1])
	}

	switch strings.ToLower(verb) {
	case "find", "explain":
		o, err := opts()
		if err != nil {
			return err
		}
		if verb == "find" {
			return s.find(arg(0), o)
		}
		return s.explain(arg(0), o)
	case "count":
		return s.count(arg(0))
	case "update":
		if len(args) < 2 {
			return fmt.Errorf("update takes a query and an update document")
		}
		return s.update(arg(0), arg(1), upsert)
	case "save":
		if len(args) == 0 {
			return fmt.Errorf("save takes a document")
		}
		id, err := s.coll.Save(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, strconv.Quote(id))
		return nil
	case "remove":
		n, err := s.coll.Remove(arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %s removed\n", humanize.Comma(int64(n)), plural(n, "document"))
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", verb)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
