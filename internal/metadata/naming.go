package metadata

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// FileName is the sentinel metadata file stored at the top of every
	// archive. Previously produced archives depend on it.
	FileName = "..."

	// ArchiveExt is appended to the backup name to form the archive file name.
	ArchiveExt = ".tar.gz"

	timestampLayout = "20060102.150405"
)

// BackupName returns <basename>@<UTC timestamp>. The name doubles as the
// in-container mount root and the archive base name.
func BackupName(basename string, t time.Time) string {
	return basename + "@" + t.UTC().Format(timestampLayout)
}

// ArchiveName returns the archive file name for a backup name.
func ArchiveName(backupName string) string {
	return backupName + ArchiveExt
}

// TrimArchiveExt strips the last two extensions from the base of filename,
// turning backup@20000505.000100.tar.gz into backup@20000505.000100.
func TrimArchiveExt(filename string) string {
	name := filepath.Base(filename)
	for i := 0; i < 2; i++ {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// ParseBackupName splits a backup name into its basename and timestamp.
func ParseBackupName(name string) (string, time.Time, bool) {
	name = TrimArchiveExt(name)
	at := strings.LastIndex(name, "@")
	if at < 0 {
		return "", time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampLayout, name[at+1:], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	return name[:at], t, true
}
