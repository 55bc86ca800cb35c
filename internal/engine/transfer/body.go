package transfer

import (
	"context"
	"errors"
	"io"
)

// openFunc opens the source at a byte offset.
type openFunc func(ctx context.Context, offset int64) (io.ReadCloser, error)

// resumableBody is an HTTP body that reopens itself at the current offset
// after a broken read, so a retried read continues where the stream died.
type resumableBody struct {
	ctx    context.Context
	open   openFunc
	body   io.ReadCloser
	offset int64
	broken bool
}

func newResumableBody(ctx context.Context, body io.ReadCloser, open openFunc) *resumableBody {
	return &resumableBody{ctx: ctx, body: body, open: open}
}

func (b *resumableBody) Read(p []byte) (int, error) {
	if b.broken || b.body == nil {
		if b.body != nil {
			_ = b.body.Close()
			b.body = nil
		}
		body, err := b.open(b.ctx, b.offset)
		if err != nil {
			b.broken = true
			return 0, err
		}
		b.body, b.broken = body, false
	}

	n, err := b.body.Read(p)
	b.offset += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		b.broken = true
	}
	return n, err
}

// Offset returns the number of bytes delivered so far.
func (b *resumableBody) Offset() int64 { return b.offset }

func (b *resumableBody) Close() error {
	if b.body == nil {
		return nil
	}
	err := b.body.Close()
	b.body = nil
	return err
}
