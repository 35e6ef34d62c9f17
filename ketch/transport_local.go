package ketch

import (
	"context"
	"fmt"
	"io"

	ctxio "github.com/jbenet/go-context/io"
	"github.com/ketchgit/core/plumbing"
	"github.com/ketchgit/core/plumbing/storer"
)

// LocalTransport implements Transport by applying pushes directly against
// a local bootstrap RefDatabase, the way a co-located voter (typically
// the leader's own replica) receives commits without a network hop. The
// accepted id is carried through a context-bound pipe so a cancelled
// round aborts the in-flight copy rather than leaking it, the same
// contract a remote transport's socket I/O must honor.
type LocalTransport struct {
	db storer.RefDatabase
}

// NewLocalTransport wraps db as a Transport.
func NewLocalTransport(db storer.RefDatabase) *LocalTransport {
	return &LocalTransport{db: db}
}

// StartPush implements Transport.
func (t *LocalTransport) StartPush(ctx context.Context, req PushRequest) (PushResult, error) {
	pr, pw := io.Pipe()
	cr := ctxio.NewReader(ctx, pr)
	cw := ctxio.NewWriter(ctx, pw)

	writeErr := make(chan error, 1)
	go func() {
		_, err := cw.Write([]byte(req.NewID.String()))
		pw.Close()
		writeErr <- err
	}()

	raw, err := io.ReadAll(cr)
	if err != nil {
		return PushResult{}, fmt.Errorf("localtransport: %w", err)
	}
	if err := <-writeErr; err != nil {
		return PushResult{}, fmt.Errorf("localtransport: %w", err)
	}

	id, ok := plumbing.FromHex(string(raw))
	if !ok {
		return PushResult{}, fmt.Errorf("localtransport: malformed id %q", raw)
	}

	// A commit push carries the leader's last-known state for this ref
	// (req.CurrentRefs); if the replica has since moved, reject rather
	// than blindly overwrite a value it diverged on.
	if req.CommitAlso && req.CurrentRefs != nil {
		have, err := t.db.ExactRef(req.Name)
		if err != nil {
			return PushResult{}, err
		}
		if !sameRef(have, req.CurrentRefs[req.Name]) {
			return PushResult{Accepted: false, RemoteID: refObjectID(have)}, nil
		}
	}

	update, err := t.db.NewUpdate(req.Name, false)
	if err != nil {
		return PushResult{}, err
	}
	if err := update.SetNew(id); err != nil {
		return PushResult{}, err
	}
	if err := update.Commit(); err != nil {
		return PushResult{Accepted: false, RemoteID: id}, nil
	}
	return PushResult{Accepted: true, RemoteID: id}, nil
}

// BlockingFetch implements Transport.
func (t *LocalTransport) BlockingFetch(ctx context.Context, refs []plumbing.ReferenceName) (map[plumbing.ReferenceName]*plumbing.Ref, error) {
	out := map[plumbing.ReferenceName]*plumbing.Ref{}
	for _, name := range refs {
		ref, err := t.db.ExactRef(name)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			out[name] = ref
		}
	}
	return out, nil
}

// sameRef reports whether have and want name the same value: both absent,
// both symbolic with the same target, or both direct with the same id.
func sameRef(have, want *plumbing.Ref) bool {
	if have == nil || want == nil {
		return have == want
	}
	if have.IsSymbolic() != want.IsSymbolic() {
		return false
	}
	if have.IsSymbolic() {
		return have.Target().Name() == want.Target().Name()
	}
	return have.ObjectID().Equal(want.ObjectID())
}

// refObjectID returns ref's object id, or the zero id if ref is absent or
// symbolic, for reporting back to the leader what a rejected push found.
func refObjectID(ref *plumbing.Ref) plumbing.ObjectID {
	if ref == nil || ref.IsSymbolic() {
		return plumbing.ObjectID{}
	}
	return ref.ObjectID()
}
