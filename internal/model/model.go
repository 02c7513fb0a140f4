// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account. The password is stored only as an Argon2id hash.
type User struct {
	ID        uuid.UUID
	Username  string // unique, used as identity everywhere else
	Email     string
	PwdHash   []byte
	SaltAuth  []byte
	CreatedAt time.Time
}

// CipherParams is everything needed to re-derive the file key and open the blob.
// It never holds the key or the password.
type CipherParams struct {
	Alg   string `json:"alg"`
	KDF   uint8  `json:"kdf"`
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
}

// Clone returns a copy that shares no memory with p.
func (p CipherParams) Clone() CipherParams {
	p.Salt = slices.Clone(p.Salt)
	p.Nonce = slices.Clone(p.Nonce)
	return p
}

// TimeWindow is an inclusive [Start, End] access interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// AccessPolicy is the zero-trust rule set attached to a file.
// Empty AllowedUsers, nil Window and empty AllowedRegions mean "no restriction".
type AccessPolicy struct {
	AllowedUsers   []string    `json:"allowed_users,omitempty"`
	Window         *TimeWindow `json:"time_window,omitempty"`
	AllowedRegions []string    `json:"allowed_regions,omitempty"`
}

// Clone deep-copies the policy so a snapshot never aliases stored state.
func (p AccessPolicy) Clone() AccessPolicy {
	out := AccessPolicy{
		AllowedUsers:   slices.Clone(p.AllowedUsers),
		AllowedRegions: slices.Clone(p.AllowedRegions),
	}
	if p.Window != nil {
		w := *p.Window
		out.Window = &w
	}
	return out
}

// Normalize trims and deduplicates users, upper-cases region codes and drops empties.
func (p AccessPolicy) Normalize() AccessPolicy {
	out := p.Clone()
	out.AllowedUsers = normalizeSet(out.AllowedUsers, strings.TrimSpace)
	out.AllowedRegions = normalizeSet(out.AllowedRegions, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
	if out.Window != nil {
		out.Window.Start = out.Window.Start.UTC()
		out.Window.End = out.Window.End.UTC()
	}
	return out
}

func normalizeSet(in []string, f func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = f(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Equal reports whether two policies carry the same rules.
func (p AccessPolicy) Equal(o AccessPolicy) bool {
	if !slices.Equal(p.AllowedUsers, o.AllowedUsers) || !slices.Equal(p.AllowedRegions, o.AllowedRegions) {
		return false
	}
	if (p.Window == nil) != (o.Window == nil) {
		return false
	}
	return p.Window == nil || (p.Window.Start.Equal(o.Window.Start) && p.Window.End.Equal(o.Window.End))
}

// FileRecord is the durable metadata of one encrypted file.
// Only Policy (and PolicyVersion with it) ever changes after creation.
type FileRecord struct {
	ID               uuid.UUID
	OwnerID          string
	OriginalFilename string
	OriginalSize     int64
	EncryptedSize    int64
	CipherParams     CipherParams
	Policy           AccessPolicy
	PolicyVersion    int64 // starts at 1, incremented by each policy replace
	UploadedAt       time.Time
	StorageKey       string
}

// Clone returns a deep copy of the record.
func (r FileRecord) Clone() FileRecord {
	r.CipherParams = r.CipherParams.Clone()
	r.Policy = r.Policy.Clone()
	return r
}

// Summary strips the record down to what callers may display.
func (r FileRecord) Summary() FileSummary {
	return FileSummary{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		OriginalFilename: r.OriginalFilename,
		OriginalSize:     r.OriginalSize,
		EncryptedSize:    r.EncryptedSize,
		Policy:           r.Policy.Clone(),
		PolicyVersion:    r.PolicyVersion,
		UploadedAt:       r.UploadedAt,
	}
}

// FileSummary is the caller-facing view of a FileRecord.
type FileSummary struct {
	ID               uuid.UUID    `json:"id"`
	OwnerID          string       `json:"owner"`
	OriginalFilename string       `json:"filename"`
	OriginalSize     int64        `json:"original_size"`
	EncryptedSize    int64        `json:"encrypted_size"`
	Policy           AccessPolicy `json:"policy"`
	PolicyVersion    int64        `json:"policy_version"`
	UploadedAt       time.Time    `json:"uploaded_at"`
}

// UploadRequest carries one upload.
type UploadRequest struct {
	OwnerID  string
	Password string
	Filename string
	Data     []byte
	Policy   AccessPolicy
	Region   string // source region recorded on the audit event, optional
}

// DownloadRequest carries one download. When Region is empty the engine
// resolves Addr through its region resolver.
type DownloadRequest struct {
	RequesterID string
	FileID      uuid.UUID
	Password    string
	Region      string
	Addr        string
}

// ShareRequest replaces a file policy. BaseVersion > 0 turns it into a
// compare-and-swap on PolicyVersion.
type ShareRequest struct {
	RequesterID string
	FileID      uuid.UUID
	Policy      AccessPolicy
	BaseVersion int64
	Region      string
}

// PolicyUpdate describes one applied policy replace.
type PolicyUpdate struct {
	FileID          uuid.UUID
	OwnerID         string
	Previous        AccessPolicy
	PreviousVersion int64
	Current         AccessPolicy
	Version         int64
}
