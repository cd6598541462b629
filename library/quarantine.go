package library

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

const quarantineStamp = "20060102_150405"

// Quarantine moves a failing table aside. The current file is copied to
// <base>-YYYYMMDD_HHMMSS.bak (with a -N suffix when that name is taken),
// the diagnostic and a BLAKE2b-256 digest of the copied content are
// appended to the copy, and the original path is reset to an empty table.
// It returns the path of the copy.
func Quarantine(dataDir string, ierr *IntegrityError, now time.Time) (string, error) {
	src := ierr.Table.Path(dataDir)
	content, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("quarantine %s: %w", ierr.Table, err)
	}

	dst, f, err := createBackup(dataDir, ierr.Table.BaseName()+"-"+now.Format(quarantineStamp))
	if err != nil {
		return "", fmt.Errorf("quarantine %s: %w", ierr.Table, err)
	}

	sum := blake2b.Sum256(content)
	var trailer string
	if len(content) > 0 && content[len(content)-1] != '\n' {
		trailer = "\n"
	}
	trailer += fmt.Sprintf("integrity check failed at line %d - %s: %s\n", ierr.Line, ierr.Phase, ierr.Reason)
	trailer += "blake2b-256 " + hex.EncodeToString(sum[:]) + "\n"

	_, werr := f.Write(append(content, trailer...))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", fmt.Errorf("quarantine %s: %w", ierr.Table, werr)
	}

	if err := writeFileAtomic(src, []byte(ierr.Table.emptyContent())); err != nil {
		return dst, fmt.Errorf("recreate %s: %w", ierr.Table, err)
	}
	return dst, nil
}

// createBackup opens a new file named base.bak, or base-N.bak for the
// first free N.
func createBackup(dir, base string) (string, *os.File, error) {
	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name += "-" + strconv.Itoa(n)
		}
		path := filepath.Join(dir, name+".bak")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return path, f, nil
	}
}

// digest fingerprints encoded table content for change detection.
func digest(content string) [32]byte {
	return blake2b.Sum256([]byte(content))
}
