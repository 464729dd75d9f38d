package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// fileScannerImpl implements the FileScanner interface over an fs.FS
type fileScannerImpl struct {
	fsys fs.FS

	// migrationFilePattern defines the expected migration file naming pattern
	migrationFilePattern *regexp.Regexp
}

// NewFileScanner creates a FileScanner reading migrations from fsys.
func NewFileScanner(fsys fs.FS) FileScanner {
	// Pattern matches: {version}_{description}.sql
	pattern := regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

	return &fileScannerImpl{
		fsys:                 fsys,
		migrationFilePattern: pattern,
	}
}

// ScanMigrations scans the migration directory for migration files
func (s *fileScannerImpl) ScanMigrations(dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, NewMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	versionMap := make(map[string]string) // version -> filename for duplicate detection

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		if err := s.ValidateFileName(entry.Name()); err != nil {
			return nil, NewMigrationError("", entry.Name(), "validate filename", err)
		}

		migration, err := s.parseMigrationFile(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		if existingFile, exists := versionMap[migration.Version]; exists {
			return nil, NewMigrationError(migration.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s",
					ErrDuplicateVersion, migration.Version, existingFile, entry.Name()))
		}
		versionMap[migration.Version] = entry.Name()

		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return versionLess(migrations[i].Version, migrations[j].Version)
	})

	return migrations, nil
}

// ValidateFileName checks if migration file follows naming convention
func (s *fileScannerImpl) ValidateFileName(filename string) error {
	matches := s.migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return fmt.Errorf("%w: %s does not match {version}_{description}.sql", ErrInvalidMigrationFile, filename)
	}
	if _, err := strconv.Atoi(matches[1]); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, matches[1])
	}
	return nil
}

func (s *fileScannerImpl) parseMigrationFile(filePath string) (Migration, error) {
	content, err := fs.ReadFile(s.fsys, filePath)
	if err != nil {
		return Migration{}, NewMigrationError("", filePath, "read file", err)
	}

	name := path.Base(filePath)
	matches := s.migrationFilePattern.FindStringSubmatch(name)
	version := matches[1]

	sqlText := string(content)
	if strings.TrimSpace(sqlText) == "" {
		return Migration{}, NewMigrationError(version, filePath, "parse file",
			fmt.Errorf("%w: file is empty", ErrInvalidMigrationFile))
	}
	if err := validateSQLSyntax(sqlText); err != nil {
		return Migration{}, NewMigrationError(version, filePath, "validate SQL", err)
	}

	description := strings.ReplaceAll(matches[2], "_", " ")
	for _, line := range strings.Split(sqlText, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			description = strings.TrimSpace(rest)
			break
		}
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         sqlText,
		FilePath:    filePath,
		Checksum:    calculateChecksum(content),
	}, nil
}

// validateSQLSyntax performs basic SQL syntax validation
func validateSQLSyntax(sqlText string) error {
	depth := 0
	inString := false
	for _, r := range sqlText {
		switch {
		case r == '\'':
			inString = !inString
		case inString:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
		}
	}
	if inString {
		return fmt.Errorf("%w: unterminated string literal", ErrInvalidMigrationFile)
	}
	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

func calculateChecksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// versionLess orders versions numerically so that "10" sorts after "9".
func versionLess(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ai < bi
}
