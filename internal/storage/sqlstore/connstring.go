package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

// busyTimeout keeps concurrent importer writes from failing with
// "database is locked".
const busyTimeout = 30 * time.Second

// sqliteConnString builds a modernc.org/sqlite connection string with the
// standard pragmas. If path is already a file: URI, pragmas are appended only
// if absent.
func sqliteConnString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	busyMs := int64(busyTimeout / time.Millisecond)

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=journal_mode") {
			conn += sep + "_pragma=journal_mode(WAL)"
		}
		return conn
	}

	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyMs)
}
