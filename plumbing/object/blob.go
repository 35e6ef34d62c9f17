package object

import "io"

// Blob is an opaque byte payload with no internal structure; it is stored
// and retrieved verbatim.
type Blob struct {
	Content []byte
}

// Decode reads r in full as the blob's content.
func (b *Blob) Decode(r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.Content = content
	return nil
}

// Encode writes the blob's content verbatim.
func (b *Blob) Encode(w io.Writer) error {
	_, err := w.Write(b.Content)
	return err
}
