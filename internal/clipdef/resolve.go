package clipdef

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

// Source looks up clip definitions by reference. A reference is a file path
// for the file-backed source or a definition name for the catalog-backed one.
type Source interface {
	// Canonical normalizes ref relative to the definition that mentioned it
	// (referrer is "" for the chain head). The returned identity is what the
	// cycle check compares.
	Canonical(referrer, ref string) (string, error)

	// Lookup loads the definition behind a canonical reference.
	Lookup(ctx context.Context, ref string) (*Definition, error)
}

// ResolvedClip is a validated chain element with its position assigned.
type ResolvedClip struct {
	Definition

	// Index is the zero-based position in the resolved chain.
	Index int
	// Ref is the canonical reference this clip was loaded from.
	Ref string

	// StartSec and EndSec are the parsed cut window in source-video seconds.
	// EndSec is meaningful only when HasEnd is true.
	StartSec float64
	EndSec   float64
	HasEnd   bool
}

// Suffix returns the artifact file-name suffix for this clip: "" for the
// first clip, "_1", "_2", ... for the rest.
func (c ResolvedClip) Suffix() string {
	if c.Index == 0 {
		return ""
	}
	return fmt.Sprintf("_%d", c.Index)
}

// ResolveChain follows NEXT references from ref and returns the ordered,
// validated chain. Resolution is all-or-nothing: any validation failure or a
// revisited reference returns an error and no clips. A TITLE on a non-first
// element is accepted and ignored.
func ResolveChain(ctx context.Context, src Source, ref string) ([]ResolvedClip, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: chain reference", ErrMissingField)
	}

	visited := make(map[string]bool)
	var clips []ResolvedClip
	referrer := ""

	for ref != "" {
		canonical, err := src.Canonical(referrer, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve reference %q: %w", ref, err)
		}
		if visited[canonical] {
			return nil, fmt.Errorf("%w: %s revisited", ErrCycleDetected, canonical)
		}
		visited[canonical] = true

		def, err := src.Lookup(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("load definition %s: %w", canonical, err)
		}

		clip, err := resolveClip(def, len(clips), canonical)
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", canonical, err)
		}
		clips = append(clips, clip)

		referrer = canonical
		ref = def.Next
	}

	return clips, nil
}

func resolveClip(def *Definition, index int, ref string) (ResolvedClip, error) {
	if err := def.Validate(); err != nil {
		return ResolvedClip{}, err
	}

	clip := ResolvedClip{Definition: *def, Index: index, Ref: ref}

	// Validate has already proven these parse.
	clip.StartSec, _ = timecode.ParseClock(def.StartTime)
	if def.EndTime != "" {
		clip.EndSec, _ = timecode.ParseClock(def.EndTime)
		clip.HasEnd = true
	}
	return clip, nil
}

// FileSource resolves references as paths on the local filesystem. Relative
// NEXT references are resolved against the referring file's directory.
type FileSource struct{}

func (FileSource) Canonical(referrer, ref string) (string, error) {
	if !filepath.IsAbs(ref) && referrer != "" {
		ref = filepath.Join(filepath.Dir(referrer), ref)
	}
	return filepath.Abs(ref)
}

func (FileSource) Lookup(_ context.Context, ref string) (*Definition, error) {
	return ParseFile(ref)
}

// FuncSource adapts a lookup function to Source, with references used
// verbatim as identities. The catalog store exposes itself this way.
type FuncSource func(ctx context.Context, ref string) (*Definition, error)

func (f FuncSource) Canonical(_, ref string) (string, error) { return ref, nil }

func (f FuncSource) Lookup(ctx context.Context, ref string) (*Definition, error) {
	return f(ctx, ref)
}
