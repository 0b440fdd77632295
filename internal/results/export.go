package results

import (
	"bytes"
	"context"
	"fmt"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// ContentType of an encoded result snapshot.
const ContentType = "application/json"

// Export uploads entries, encoded exactly like the result file, to object in
// store and returns the object's URI.
func Export(ctx context.Context, store crawler.BlobStore, object string, entries []crawler.Entry) (string, error) {
	payload, err := Encode(entries)
	if err != nil {
		return "", err
	}
	uri, err := store.PutObject(ctx, object, ContentType, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("export results to %s: %w", object, err)
	}
	return uri, nil
}
