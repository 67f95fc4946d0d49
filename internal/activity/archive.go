package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// WriteArchive writes the event's full activity stream to w as
// zstd-compressed JSON lines, oldest first.
func (b *Broadcaster) WriteArchive(ctx context.Context, w io.Writer, eventID string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	err = b.store.EachActivity(ctx, eventID, func(a hunt.Activity) error {
		return enc.Encode(a)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	return zw.Close()
}

// ReadArchive decodes an archive written by WriteArchive.
func ReadArchive(r io.Reader) ([]hunt.Activity, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var acts []hunt.Activity
	dec := json.NewDecoder(zr)
	for {
		var a hunt.Activity
		if err := dec.Decode(&a); errors.Is(err, io.EOF) {
			return acts, nil
		} else if err != nil {
			return nil, fmt.Errorf("decoding archive: %w", err)
		}
		acts = append(acts, a)
	}
}
