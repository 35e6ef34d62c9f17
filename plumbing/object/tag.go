package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ketchgit/core/plumbing"
)

// Tag is the decoded form of a Git annotated tag object. RefTree consults
// a tag chain's terminal non-tag id when caching a ref's peeled value.
type Tag struct {
	TargetID   plumbing.ObjectID
	TargetType plumbing.ObjectType
	Name       string
	Tagger     Signature
	Message    string
}

// Decode parses r as a tag object's content (without the "tag N\0" header).
func (t *Tag) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	*t = Tag{}
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("tag header: %w", err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			break
		}

		switch {
		case strings.HasPrefix(trimmed, "object "):
			id, ok := plumbing.FromHex(strings.TrimPrefix(trimmed, "object "))
			if !ok {
				return fmt.Errorf("tag: malformed object header %q", trimmed)
			}
			t.TargetID = id
		case strings.HasPrefix(trimmed, "type "):
			t.TargetType = objectTypeFromName(strings.TrimPrefix(trimmed, "type "))
		case strings.HasPrefix(trimmed, "tag "):
			t.Name = strings.TrimPrefix(trimmed, "tag ")
		case strings.HasPrefix(trimmed, "tagger "):
			t.Tagger.Decode([]byte(strings.TrimPrefix(trimmed, "tagger ")))
		}
		if err == io.EOF {
			break
		}
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return fmt.Errorf("tag message: %w", err)
	}
	t.Message = string(rest)
	return nil
}

// Encode writes t in git's tag wire order: object, type, tag, tagger, a
// blank line, then the message.
func (t *Tag) Encode(w io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetID)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.Encode())
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	_, err := w.Write(buf.Bytes())
	return err
}

func objectTypeFromName(s string) plumbing.ObjectType {
	switch s {
	case "commit":
		return plumbing.CommitObject
	case "tree":
		return plumbing.TreeObject
	case "blob":
		return plumbing.BlobObject
	case "tag":
		return plumbing.TagObject
	default:
		return plumbing.InvalidObject
	}
}
