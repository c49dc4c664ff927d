package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const backupFileExt = ".bak"

// sqliteFile returns the database file a SQLite DSN refers to, or "" for
// in-memory databases.
func sqliteFile(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return ""
	}
	return path
}

// backupper snapshots a SQLite database file before it is migrated and keeps
// the newest max snapshots.
type backupper struct {
	logger *zap.SugaredLogger
	now    func() time.Time
	max    int
}

// Backup copies dbPath to <dbPath>.<timestamp>.bak and prunes older copies.
// It returns "" when there is no file to back up.
func (b *backupper) Backup(dbPath string) (string, error) {
	info, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", dbPath)
	}

	dst := fmt.Sprintf("%s.%s%s", dbPath, b.now().Format("20060102-150405"), backupFileExt)
	if err := copyFile(dbPath, dst); err != nil {
		return "", fmt.Errorf("backing up %s: %w", dbPath, err)
	}
	b.logger.Infow("database backed up", "path", dbPath, "backup", dst, "bytes", info.Size())
	b.prune(dbPath)
	return dst, nil
}

func (b *backupper) prune(dbPath string) {
	dir := filepath.Dir(dbPath)
	prefix := filepath.Base(dbPath) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.logger.Warnw("listing backups failed", "dir", dir, "error", err)
		return
	}

	var backups []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), backupFileExt) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	if len(backups) <= b.max {
		return
	}
	// Timestamped names sort oldest first.
	slices.Sort(backups)
	for _, stale := range backups[:len(backups)-b.max] {
		if err := os.Remove(stale); err != nil {
			b.logger.Warnw("removing old backup failed", "backup", stale, "error", err)
			continue
		}
		b.logger.Infow("old backup removed", "backup", stale)
	}
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
