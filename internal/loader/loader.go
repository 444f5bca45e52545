// Package loader reads knowledge bases written in CUE.
//
// A knowledge base has two optional top-level lists:
//
//	nodes: [{type: "Concept", name: "human"}]
//	links: [{type: "Similarity", targets: [
//		{type: "Concept", name: "human"},
//		{type: "Concept", name: "monkey"},
//	]}]
//
// Targets nest to any depth. Any entry may carry a "fields" struct. Type
// names and node names are NFC-normalized before they are hashed.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/hyperdb/internal/atom"
)

// Error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeInvalidNode = "E201" // Malformed node entry
	ErrCodeInvalidLink = "E202" // Malformed link entry
	ErrCodeApplyFailed = "E210" // Store rejected an entry
)

// LoadError is an error with the CUE source position that caused it.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Entry is one description and where it was written.
type Entry struct {
	Desc atom.Desc
	Pos  token.Pos
}

// KnowledgeBase is a decoded knowledge base.
type KnowledgeBase struct {
	Nodes     []Entry
	Links     []Entry
	FileCount int
}

// Load reads a knowledge base from a .cue file or from every .cue file in a
// directory, which load as one instance.
func Load(path string) (*KnowledgeBase, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("knowledge base not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}

	var (
		cfg   *load.Config
		args  []string
		files int
	)
	if info.IsDir() {
		matches, err := filepath.Glob(filepath.Join(path, "*.cue"))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		cfg = &load.Config{Dir: path}
		args = []string{"."}
		files = len(matches)
	} else {
		cfg = &load.Config{Dir: filepath.Dir(path)}
		args = []string{filepath.Base(path)}
		files = 1
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	kb, err := Decode(value)
	if err != nil {
		return nil, err
	}
	kb.FileCount = files
	return kb, nil
}

// LoadString reads a knowledge base from CUE source. filename only labels
// positions.
func LoadString(src, filename string) (*KnowledgeBase, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Decode(value)
}

// Decode extracts the nodes and links lists from a built CUE value.
func Decode(v cue.Value) (*KnowledgeBase, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	kb := &KnowledgeBase{}
	var err error
	kb.Nodes, err = decodeList(v, "nodes", false)
	if err != nil {
		return nil, err
	}
	kb.Links, err = decodeList(v, "links", true)
	if err != nil {
		return nil, err
	}
	return kb, nil
}

func decodeList(root cue.Value, label string, links bool) ([]Entry, error) {
	v := root.LookupPath(cue.ParsePath(label))
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, cueError(ErrCodeGeneric, err)
	}

	var entries []Entry
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		d, err := decodeDesc(elem, fmt.Sprintf("%s[%d]", label, i))
		if err != nil {
			return nil, err
		}
		if links && !d.IsLink() {
			return nil, &LoadError{Code: ErrCodeInvalidLink, Message: fmt.Sprintf("%s[%d]: link has no targets", label, i), Pos: elem.Pos()}
		}
		if !links && d.IsLink() {
			return nil, &LoadError{Code: ErrCodeInvalidNode, Message: fmt.Sprintf("%s[%d]: node has targets", label, i), Pos: elem.Pos()}
		}
		entries = append(entries, Entry{Desc: d, Pos: elem.Pos()})
	}
	return entries, nil
}

func decodeDesc(v cue.Value, path string) (atom.Desc, error) {
	if err := v.Err(); err != nil {
		return atom.Desc{}, cueError(ErrCodeGeneric, err)
	}

	typ, err := stringField(v, "type", path)
	if err != nil {
		return atom.Desc{}, err
	}
	if typ == "" {
		return atom.Desc{}, &LoadError{Code: ErrCodeInvalidNode, Message: path + ": type is required", Pos: v.Pos()}
	}
	d := atom.Desc{Type: typ}

	targets := v.LookupPath(cue.ParsePath("targets"))
	if targets.Exists() {
		iter, err := targets.List()
		if err != nil {
			return atom.Desc{}, &LoadError{Code: ErrCodeInvalidLink, Message: path + ".targets: must be a list", Pos: targets.Pos()}
		}
		for i := 0; iter.Next(); i++ {
			t, err := decodeDesc(iter.Value(), fmt.Sprintf("%s.targets[%d]", path, i))
			if err != nil {
				return atom.Desc{}, err
			}
			d.Targets = append(d.Targets, t)
		}
		if len(d.Targets) == 0 {
			return atom.Desc{}, &LoadError{Code: ErrCodeInvalidLink, Message: path + ".targets: must not be empty", Pos: targets.Pos()}
		}
	} else {
		d.Name, err = stringField(v, "name", path)
		if err != nil {
			return atom.Desc{}, err
		}
		if d.Name == "" {
			return atom.Desc{}, &LoadError{Code: ErrCodeInvalidNode, Message: path + ": name is required", Pos: v.Pos()}
		}
	}

	fields := v.LookupPath(cue.ParsePath("fields"))
	if fields.Exists() {
		var m map[string]any
		if err := fields.Decode(&m); err != nil {
			return atom.Desc{}, cueError(ErrCodeGeneric, err)
		}
		d.Fields = m
	}
	return d, nil
}

func stringField(v cue.Value, label, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(label))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s.%s: must be a string", path, label), Pos: f.Pos()}
	}
	return norm.NFC.String(s), nil
}

// cueError converts a CUE error to a LoadError carrying its first position.
func cueError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error(), Err: err}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Adder stores atom descriptions.
type Adder interface {
	Add(ctx context.Context, d atom.Desc) (atom.Atom, error)
}

// Result counts the entries applied.
type Result struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

// Apply adds every node and then every link to s. It stops at the first
// entry s rejects.
func (kb *KnowledgeBase) Apply(ctx context.Context, s Adder) (Result, error) {
	var r Result
	for _, e := range kb.Nodes {
		if _, err := s.Add(ctx, e.Desc); err != nil {
			return r, &LoadError{Code: ErrCodeApplyFailed, Message: err.Error(), Pos: e.Pos, Err: err}
		}
		r.Nodes++
	}
	for _, e := range kb.Links {
		if _, err := s.Add(ctx, e.Desc); err != nil {
			return r, &LoadError{Code: ErrCodeApplyFailed, Message: err.Error(), Pos: e.Pos, Err: err}
		}
		r.Links++
	}
	return r, nil
}
