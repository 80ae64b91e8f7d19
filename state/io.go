package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrStateIOFailure wraps unrecoverable persistence failures; the
// orchestrator escalates this to a CRITICAL guard halt per spec.md section 7.
var ErrStateIOFailure = errors.New("state: unrecoverable I/O failure")

// Load reads the portfolio state from path. If the primary file is missing
// or corrupt it falls back to the ".bak" companion, matching spec.md
// section 7's "State I/O failure: recovery via .bak" rule. Returns
// ErrStateIOFailure when neither file is readable.
func Load(path string) (*Portfolio, error) {
	p, err := loadFile(path)
	if err == nil {
		return p, nil
	}
	bak, bakErr := loadFile(path + ".bak")
	if bakErr == nil {
		return bak, nil
	}
	return nil, fmt.Errorf("%w: primary=%v backup=%v", ErrStateIOFailure, err, bakErr)
}

func loadFile(path string) (*Portfolio, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Portfolio{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, nil
}

// Init creates a fresh portfolio state file if one does not yet exist,
// seeded from the configured starting balance.
func Init(path string, startingBalanceSOL float64, now time.Time) (*Portfolio, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	p := &Portfolio{
		StartingBalanceSOL: startingBalanceSOL,
		CurrentBalanceSOL:  startingBalanceSOL,
		DailyDate:          now.UTC().Format("2006-01-02"),
		LastHeartbeatTime:  now,
	}
	if err := Save(path, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save atomically persists the portfolio state: acquire an advisory file
// lock, copy the existing file to ".bak", write to a temp file in the same
// directory, then rename over the target. This mirrors the teacher's
// config.Load temp-write-then-rename pattern, extended with file locking
// for the read-modify-write discipline spec.md section 5 requires.
func Save(path string, p *Portfolio) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrStateIOFailure, dir, err)
	}

	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("%w: acquire lock on %s: %v", ErrStateIOFailure, path, err)
	}
	defer lock.Unlock()

	if existing, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", existing, 0o644); err != nil {
			return fmt.Errorf("%w: write backup: %v", ErrStateIOFailure, err)
		}
	}

	buf, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal state: %v", ErrStateIOFailure, err)
	}

	tmp, err := os.CreateTemp(dir, ".portfolio_state-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStateIOFailure, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %v", ErrStateIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", ErrStateIOFailure, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp file: %v", ErrStateIOFailure, err)
	}
	return nil
}
