package transport

import (
	"context"
	"io"
	"time"
)

// aLongTimeAgo forces pending I/O to fail immediately.
var aLongTimeAgo = time.Unix(1, 0)

// BindDeadline applies ctx's deadline through set and forces an immediate
// deadline once ctx is cancelled. The returned stop must be called when the
// operation ends; it clears the deadline again.
func BindDeadline(ctx context.Context, set func(time.Time) error) (stop func()) {
	if dl, ok := ctx.Deadline(); ok {
		_ = set(dl)
	}
	cancel := context.AfterFunc(ctx, func() { _ = set(aLongTimeAgo) })
	return func() {
		cancel()
		_ = set(time.Time{})
	}
}

// ctxErr prefers the context error over the I/O timeout it provoked.
func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadMessage reads r until EOF. More than limit bytes is ErrMessageTooLarge.
// setDeadline is the read-deadline setter of the underlying stream.
func ReadMessage(ctx context.Context, r io.Reader, setDeadline func(time.Time) error, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxMessageBytes
	}
	stop := BindDeadline(ctx, setDeadline)
	defer stop()
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	if int64(len(b)) > limit {
		return nil, ErrMessageTooLarge
	}
	return b, nil
}

// WriteMessage writes data in full under ctx. The caller half-closes.
func WriteMessage(ctx context.Context, w io.Writer, setDeadline func(time.Time) error, data []byte) error {
	stop := BindDeadline(ctx, setDeadline)
	defer stop()
	if _, err := w.Write(data); err != nil {
		return ctxErr(ctx, err)
	}
	return nil
}
