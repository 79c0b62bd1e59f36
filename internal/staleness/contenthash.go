package staleness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ContentHashPolicy compares sha256 content hashes of the declared inputs
// against the hash recorded when the outputs were last produced. Records
// live under Dir, one file per output set, so unrelated tasks never touch
// each other's entries.
type ContentHashPolicy struct {
	// Dir is the cache directory for hash records
	Dir string
}

// Name identifies the policy in logs
func (p ContentHashPolicy) Name() string { return "sha256" }

// OutputsCurrent reports whether the recorded input hash matches the current
// one. No record means the outputs were produced by an unknown input state,
// which counts as stale.
func (p ContentHashPolicy) OutputsCurrent(inputs, outputs []string) (bool, error) {
	recorded, err := os.ReadFile(p.recordPath(outputs))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	current, err := combinedInputHash(inputs)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(recorded)) == current, nil
}

// Commit records the current input hash for the output set
func (p ContentHashPolicy) Commit(inputs, outputs []string) error {
	current, err := combinedInputHash(inputs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(p.recordPath(outputs), []byte(current+"\n"), 0644)
}

// recordPath derives a stable cache filename from the output set
func (p ContentHashPolicy) recordPath(outputs []string) string {
	sum := sha256.Sum256([]byte(strings.Join(outputs, "\x00")))
	return filepath.Join(p.Dir, hex.EncodeToString(sum[:]))
}

// combinedInputHash hashes the content hash of every input in order. A
// missing input hashes as its path alone, which still changes the combined
// value when the file later appears.
func combinedInputHash(inputs []string) (string, error) {
	h := sha256.New()
	for _, in := range inputs {
		fileSum, err := FileSHA256(in)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(h, "missing:%s\x00", in)
				continue
			}
			return "", err
		}
		fmt.Fprintf(h, "%s:%s\x00", in, fileSum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSHA256 returns the hex sha256 of a file's content
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
