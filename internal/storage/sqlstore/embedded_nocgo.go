//go:build !cgo

package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var errNoCGO = errors.New("sqlstore: this binary was built without CGO support; rebuild with CGO_ENABLED=1")

// OpenDolt returns an error in non-CGO builds. Use a mysql:// cache URL to
// reach a dolt sql-server instead.
func OpenDolt(_ context.Context, _, _ string, _ *slog.Logger) (*Store, error) {
	return nil, fmt.Errorf("embedded dolt cache requires CGO: %w", errNoCGO)
}
