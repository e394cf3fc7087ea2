package bridge

import (
	"io"

	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/ndjson"
)

// parseNDJSON delegates to the shared ndjson parser: the bridged CLI and
// the runtime's own external agent emit the same stream-json shape.
func parseNDJSON(r io.Reader) ([]model.Event, error) {
	return ndjson.ParseEvents(r)
}
