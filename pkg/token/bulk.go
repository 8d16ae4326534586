package token

import (
	"errors"
	"fmt"
)

// DefaultMaxAttempts bounds collision retries per token in GenerateBulk.
const DefaultMaxAttempts = 10

var (
	// ErrCollisionsExhausted is recorded for a guest whose token kept colliding.
	ErrCollisionsExhausted = errors.New("token: collision retries exhausted")

	// ErrDuplicateGuest is recorded when a guest id appears twice in one batch.
	ErrDuplicateGuest = errors.New("token: duplicate guest id in batch")

	// ErrEmptyGuest is recorded for a blank guest id.
	ErrEmptyGuest = errors.New("token: empty guest id")
)

// BulkOptions configures GenerateBulk.
type BulkOptions struct {
	// Existing reports whether a token has already been issued. Nil means
	// no tokens exist yet.
	Existing func(token string) bool

	// WithBackup issues a second token per guest.
	WithBackup bool

	// MaxAttempts per token. Zero means DefaultMaxAttempts.
	MaxAttempts int
}

// Issued is one guest's generated token pair.
type Issued struct {
	GuestID     string
	Token       string
	BackupToken string
}

// GuestError attributes a failure to one guest.
type GuestError struct {
	GuestID string
	Err     error
}

func (e GuestError) Error() string {
	return fmt.Sprintf("guest %s: %v", e.GuestID, e.Err)
}

func (e GuestError) Unwrap() error { return e.Err }

// BulkResult is the outcome of GenerateBulk.
type BulkResult struct {
	Tokens           []Issued
	CollisionRetries int
	Errors           []GuestError
}

// GenerateBulk issues one token per guest id (two when WithBackup is set).
//
// Tokens never collide with Existing or with each other. A guest whose
// token cannot be placed within MaxAttempts gets a GuestError and the batch
// continues.
func (c *Codec) GenerateBulk(guestIDs []string, opts BulkOptions) BulkResult {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	existing := opts.Existing
	if existing == nil {
		existing = func(string) bool { return false }
	}

	res := BulkResult{Tokens: make([]Issued, 0, len(guestIDs))}
	issued := make(map[string]struct{}, len(guestIDs))
	seen := make(map[string]struct{}, len(guestIDs))

	next := func() (string, error) {
		for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
			tok, err := c.Generate()
			if err != nil {
				return "", err
			}
			if _, dup := issued[tok]; dup || existing(tok) {
				res.CollisionRetries++
				continue
			}
			return tok, nil
		}
		return "", ErrCollisionsExhausted
	}

	for _, id := range guestIDs {
		if id == "" {
			res.Errors = append(res.Errors, GuestError{GuestID: id, Err: ErrEmptyGuest})
			continue
		}
		if _, dup := seen[id]; dup {
			res.Errors = append(res.Errors, GuestError{GuestID: id, Err: ErrDuplicateGuest})
			continue
		}
		seen[id] = struct{}{}

		primary, err := next()
		if err != nil {
			res.Errors = append(res.Errors, GuestError{GuestID: id, Err: err})
			continue
		}
		entry := Issued{GuestID: id, Token: primary}
		if opts.WithBackup {
			issued[primary] = struct{}{}
			backup, err := next()
			if err != nil {
				delete(issued, primary)
				res.Errors = append(res.Errors, GuestError{GuestID: id, Err: fmt.Errorf("backup token: %w", err)})
				continue
			}
			entry.BackupToken = backup
			issued[backup] = struct{}{}
		}
		issued[primary] = struct{}{}
		res.Tokens = append(res.Tokens, entry)
	}
	return res
}
