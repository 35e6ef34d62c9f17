package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ketchgit/core/plumbing"
)

// Commit is the decoded form of a Git commit object: a tree snapshot, zero
// or more parents, author/committer identities, and a free-form message.
// Ketch log entries are ordinary Commits whose tree is a RefTree snapshot.
type Commit struct {
	TreeID    plumbing.ObjectID
	ParentIDs []plumbing.ObjectID
	Author    Signature
	Committer Signature
	Message   string
}

// Decode parses r as a commit object's content (without the "commit N\0"
// header).
func (c *Commit) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	*c = Commit{}
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("commit header: %w", err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			break
		}

		switch {
		case strings.HasPrefix(trimmed, "tree "):
			id, ok := plumbing.FromHex(strings.TrimPrefix(trimmed, "tree "))
			if !ok {
				return fmt.Errorf("commit: malformed tree header %q", trimmed)
			}
			c.TreeID = id
		case strings.HasPrefix(trimmed, "parent "):
			id, ok := plumbing.FromHex(strings.TrimPrefix(trimmed, "parent "))
			if !ok {
				return fmt.Errorf("commit: malformed parent header %q", trimmed)
			}
			c.ParentIDs = append(c.ParentIDs, id)
		case strings.HasPrefix(trimmed, "author "):
			c.Author.Decode([]byte(strings.TrimPrefix(trimmed, "author ")))
		case strings.HasPrefix(trimmed, "committer "):
			c.Committer.Decode([]byte(strings.TrimPrefix(trimmed, "committer ")))
		}
		if err == io.EOF {
			break
		}
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	c.Message = string(rest)
	return nil
}

// Encode writes c in git's commit wire order: tree, parents in order,
// author, committer, a blank line, then the message.
func (c *Commit) Encode(w io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeID)
	for _, p := range c.ParentIDs {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.Encode())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.Encode())
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	_, err := w.Write(buf.Bytes())
	return err
}

// IsRoot reports whether c has no parents, i.e. it is the first log entry.
func (c *Commit) IsRoot() bool { return len(c.ParentIDs) == 0 }
