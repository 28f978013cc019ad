package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateOptions tunes the generated migration skeleton.
type CreateOptions struct {
	// NoTransaction emits "-- +goose NO TRANSACTION" for statements such as
	// CREATE INDEX CONCURRENTLY on the parcels table.
	NoTransaction bool
	Now           func() time.Time
}

// CreateSQLMigration creates <dir>/<YYYYMMDDHHMMSS>_<name>.sql. A name already
// used by another migration in dir is rejected.
func CreateSQLMigration(dir string, name string, opts CreateOptions) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	existing, err := filepath.Glob(filepath.Join(dir, "*_"+safe+".sql"))
	if err != nil {
		return "", fmt.Errorf("scan %q: %w", dir, err)
	}
	for _, path := range existing {
		if sqlFileRe.MatchString(filepath.Base(path)) {
			return "", fmt.Errorf("migration named %q already exists: %s", safe, path)
		}
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now().UTC().Format("20060102150405"), safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	if err := os.WriteFile(fullpath, []byte(migrationTemplate(safe, opts.NoTransaction)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

func migrationTemplate(name string, noTx bool) string {
	var b strings.Builder
	if noTx {
		b.WriteString("-- +goose NO TRANSACTION\n\n")
	}
	fmt.Fprintf(&b, "-- +goose Up\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n\n", name)
	fmt.Fprintf(&b, "-- +goose Down\n-- +goose StatementBegin\n-- rollback %s\n-- +goose StatementEnd\n", name)
	return b.String()
}
