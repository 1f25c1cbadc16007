// Package satelit holds the scheduler's domain: catalog sources, the index
// snapshots seen on the indexer, and the title ids an import couldn't ingest.
package satelit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnknownSource = errors.New("unknown source")
)

// Source is the external catalog a snapshot or intent pertains to.
//
// The integer value is what's stored in the database.
type Source int

const (
	SourceAnidb Source = 0
)

// Sources lists every known source.
var Sources = []Source{SourceAnidb}

// String is the source's tag, also used as its URL path component.
func (s Source) String() string {
	switch s {
	case SourceAnidb:
		return "anidb"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ParseSource maps a tag from config or a URL path to a Source. Case and
// surrounding space are ignored.
func ParseSource(tag string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "anidb":
		return SourceAnidb, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}
}

// legacyAnidbTag is how older indexers tagged anidb snapshots.
const legacyAnidbTag = 1

// SourceFromJSON maps the indexer's source tag to a Source.
//
// The tag is either the exact string ("anidb") or, from older indexers, a number.
func SourceFromJSON(raw json.RawMessage) (Source, error) {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		for _, src := range Sources {
			if src.String() == tag {
				return src, nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}

	var num int
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, string(raw))
	}
	if num != legacyAnidbTag {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSource, num)
	}

	return SourceAnidb, nil
}
