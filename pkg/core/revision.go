package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// hashLen is the number of hex characters kept from the content digest.
const hashLen = 32

// Revision is the optimistic-concurrency token of a document: a generation
// counter starting at 1 plus a digest of the content written at that
// generation. Its text form is "<generation>-<hash>".
type Revision struct {
	Generation uint64
	Hash       string
}

// IsZero reports whether r is the absent revision.
func (r Revision) IsZero() bool {
	return r.Generation == 0 && r.Hash == ""
}

func (r Revision) String() string {
	if r.IsZero() {
		return ""
	}
	return strconv.FormatUint(r.Generation, 10) + "-" + r.Hash
}

// ParseRevision parses the "<generation>-<hash>" form. An empty string yields
// the zero revision.
func ParseRevision(s string) (Revision, error) {
	if s == "" {
		return Revision{}, nil
	}
	genPart, hash, ok := strings.Cut(s, "-")
	if !ok || hash == "" {
		return Revision{}, fmt.Errorf("%w: malformed revision %q", ErrInvalidDocument, s)
	}
	gen, err := strconv.ParseUint(genPart, 10, 64)
	if err != nil || gen == 0 {
		return Revision{}, fmt.Errorf("%w: malformed revision %q", ErrInvalidDocument, s)
	}
	return Revision{Generation: gen, Hash: hash}, nil
}

func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Revision) UnmarshalText(text []byte) error {
	parsed, err := ParseRevision(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// CheckAndAdvance validates a write against the current revision of a
// document and returns the revision the write will carry.
//
// With no current revision and no supplied revision the result is
// generation 1. Otherwise supplied must equal current exactly, and the result
// is the next generation with a hash over the new content. Any mismatch is
// ErrConflict.
func CheckAndAdvance(current, supplied Revision, content []byte, deleted bool) (Revision, error) {
	if supplied != current {
		if current.IsZero() {
			return Revision{}, fmt.Errorf("%w: document has no revision %s", ErrConflict, supplied)
		}
		return Revision{}, fmt.Errorf("%w: expected revision %s, got %q", ErrConflict, current, supplied.String())
	}
	return Revision{
		Generation: current.Generation + 1,
		Hash:       revisionHash(current, content, deleted),
	}, nil
}

func revisionHash(prev Revision, content []byte, deleted bool) string {
	h := sha256.New()
	h.Write([]byte(prev.String()))
	h.Write([]byte{0})
	if deleted {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))[:hashLen]
}
