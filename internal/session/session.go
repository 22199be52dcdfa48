// Package session provides session file handling and persistence.
//
// A session groups the structure composite stack with the data sources it
// was drawn on (collection) and the data sources it is transferred to
// (colocalization).
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"impose/internal/datasource"
	"impose/internal/image"
	"impose/internal/logging"
	"impose/internal/version"
	"impose/pkg/structure"
)

// Session holds the composite stack and both schemes. Collect and
// Colocalize share Stack.
type Session struct {
	Stack      *structure.Stack
	Collect    *Collect
	Colocalize *Colocalize

	// Open loads a data source from a file. It defaults to
	// datasource.Open.
	Open func(path string) (*datasource.Source, error)
}

// New creates an empty session.
func New() *Session {
	stack := structure.NewStack()
	return &Session{
		Stack:      stack,
		Collect:    &Collect{stack: stack},
		Colocalize: &Colocalize{stack: stack},
		Open:       datasource.Open,
	}
}

// Clear empties the stack and both schemes.
func (s *Session) Clear() {
	s.Stack.Clear()
	s.Collect.Clear()
	s.Colocalize.Clear()
}

// Info records the program that wrote a session file.
type Info struct {
	Version string `json:"version"`
}

// State is the persisted form of a session.
type State struct {
	Stack          structure.StackState `json:"structure composite stack"`
	Collection     CollectState         `json:"collection"`
	Colocalization ColocalizeState      `json:"colocalization"`
	Impose         *Info                `json:"impose,omitempty"`
}

// State returns the persisted form of the session.
func (s *Session) State() State {
	return State{
		Stack:          s.Stack.State(),
		Collection:     s.Collect.State(),
		Colocalization: s.Colocalize.State(),
	}
}

// SetState replaces the session with st. Data sources are reopened from
// their paths. On error the session is left unchanged.
func (s *Session) SetState(st State) error {
	stack := structure.NewStack()
	if err := stack.SetState(st.Stack); err != nil {
		return fmt.Errorf("structure composite stack: %w", err)
	}
	collected, err := s.openAll(st.Collection.DataSources)
	if err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	colocalized, err := s.openAll(st.Colocalization.DataSources)
	if err != nil {
		return fmt.Errorf("colocalization: %w", err)
	}
	var manual []*structure.Composite
	for i, cs := range st.Colocalization.Manual {
		sc := structure.NewComposite()
		if err := sc.SetState(cs); err != nil {
			return fmt.Errorf("manual composite %d: %w", i, err)
		}
		manual = append(manual, sc)
	}

	s.Stack.Clear()
	s.Stack.Extend(stack)
	s.Collect.Sources = collected
	s.Colocalize.Sources = colocalized
	s.Colocalize.Manual = manual
	return nil
}

func (s *Session) openAll(states []datasource.State) ([]*datasource.Source, error) {
	open := s.Open
	if open == nil {
		open = datasource.Open
	}
	out := make([]*datasource.Source, 0, len(states))
	for _, st := range states {
		ds, err := open(st.Path)
		if err != nil {
			return nil, err
		}
		if err := ds.SetMetadata(st.Metadata); err != nil {
			return nil, fmt.Errorf("%s: %w", st.Path, err)
		}
		out = append(out, ds)
	}
	return out, nil
}

// Equal reports whether both sessions have the same persisted state.
func (s *Session) Equal(other *Session) bool {
	if other == nil {
		return false
	}
	return cmp.Equal(s.State(), other.State(), cmpopts.EquateNaNs(), cmpopts.EquateEmpty(), equateLength)
}

var equateLength = cmp.Comparer(func(a, b datasource.Length) bool {
	return a == b || (math.IsNaN(float64(a)) && math.IsNaN(float64(b)))
})

// Save writes the session to a JSON file.
func (s *Session) Save(path string) error {
	st := s.State()
	st.Impose = &Info{Version: version.Version}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Load replaces the session with one stored on disk. Data files that have
// moved are looked up by name and signature in their recorded directory,
// in searchPaths and in the directory of the session file.
func (s *Session) Load(path string, searchPaths ...string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse session %s: %w", path, err)
	}
	if st.Impose != nil && st.Impose.Version != version.Version {
		logging.L().Debug("session written by another version",
			zap.String("path", path),
			zap.String("version", st.Impose.Version))
	}

	dirs := append(append([]string(nil), searchPaths...), filepath.Dir(path))
	for _, list := range [][]datasource.State{st.Collection.DataSources, st.Colocalization.DataSources} {
		for i := range list {
			if err := relocate(&list[i], dirs); err != nil {
				return err
			}
		}
	}
	return s.SetState(st)
}

func relocate(st *datasource.State, dirs []string) error {
	search := append([]string{filepath.Dir(st.Path)}, dirs...)
	found, err := FindFile(filepath.Base(st.Path), search, st.Metadata.Signature)
	if err != nil {
		return err
	}
	if found != st.Path {
		logging.L().Info("relocated data file",
			zap.String("from", st.Path),
			zap.String("to", found))
	}
	st.Path = found
	return nil
}

// FileNotFoundError is returned when a data file cannot be located.
type FileNotFoundError struct {
	Name      string
	Signature string
}

func (e *FileNotFoundError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("could not find file %q (signature %s)", e.Name, e.Signature)
	}
	return fmt.Sprintf("could not find file %q", e.Name)
}

func (e *FileNotFoundError) Unwrap() error { return fs.ErrNotExist }

// FindFile searches the directory trees in searchPaths, in order, for a
// file called name. With a non-empty signature only a file whose signature
// matches is returned.
func FindFile(name string, searchPaths []string, signature string) (string, error) {
	for _, root := range searchPaths {
		var found string
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable or missing directories are skipped
				if d == nil || d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || d.Name() != name {
				return nil
			}
			if signature != "" {
				sig, err := image.Signature(p)
				if err != nil || sig != signature {
					return nil
				}
			}
			found = p
			return fs.SkipAll
		})
		if err != nil && !errors.Is(err, fs.SkipDir) {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", &FileNotFoundError{Name: name, Signature: signature}
}
