// Package policy evaluates zero-trust access policies against a request context.
//
// Evaluation is pure: it reads only the policy snapshot and the Input, never
// the clock or the network, so the same input always produces the same decision.
package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
)

// Check names the rule that decided.
const (
	CheckOwner    = "owner"
	CheckInput    = "input"
	CheckIdentity = "identity"
	CheckTime     = "time"
	CheckRegion   = "region"
)

// Denial reasons.
const (
	ReasonUserNotAuthorized = "user not authorized"
	ReasonOutsideWindow     = "outside access window"
	ReasonRegionNotAllowed  = "region not allowed"
	ReasonRegionUnknown     = "region could not be determined"
	ReasonInvalidWindow     = "invalid access window"
	ReasonMissingContext    = "incomplete request context"
)

// Input is the request context of one access attempt.
type Input struct {
	RequesterID string
	OwnerID     string
	Now         time.Time
	Region      string
	RegionErr   error // non-nil when the region lookup failed
}

// Decision is the evaluator verdict.
type Decision struct {
	Allowed bool
	Check   string
	Reason  string
}

// Err converts a deny decision to *errs.DeniedError; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &errs.DeniedError{Check: d.Check, Reason: d.Reason}
}

// Evaluator applies owner bypass, then identity, time and region checks in that order.
type Evaluator struct{}

// Evaluate decides whether in may access a file protected by snapshot.
// Any missing or unusable piece of context denies.
func (Evaluator) Evaluate(snapshot model.AccessPolicy, in Input) Decision {
	if in.RequesterID == "" || in.OwnerID == "" {
		return deny(CheckInput, ReasonMissingContext)
	}
	if in.RequesterID == in.OwnerID {
		return Decision{Allowed: true, Check: CheckOwner}
	}
	if in.Now.IsZero() {
		return deny(CheckInput, ReasonMissingContext)
	}

	if len(snapshot.AllowedUsers) > 0 && !slices.Contains(snapshot.AllowedUsers, in.RequesterID) {
		return deny(CheckIdentity, ReasonUserNotAuthorized)
	}

	if w := snapshot.Window; w != nil {
		if w.End.Before(w.Start) {
			return deny(CheckTime, ReasonInvalidWindow)
		}
		if !w.Contains(in.Now) {
			return deny(CheckTime, ReasonOutsideWindow)
		}
	}

	region := strings.ToUpper(strings.TrimSpace(in.Region))
	if in.RegionErr != nil || region == "" {
		return deny(CheckRegion, ReasonRegionUnknown)
	}
	if len(snapshot.AllowedRegions) > 0 && !containsFold(snapshot.AllowedRegions, region) {
		return deny(CheckRegion, ReasonRegionNotAllowed)
	}

	return Decision{Allowed: true}
}

// PermitsIdentity reports whether user passes the owner and identity checks
// alone. Listings use it; downloads still run the full Evaluate.
func PermitsIdentity(p model.AccessPolicy, owner, user string) bool {
	if user == "" {
		return false
	}
	if user == owner {
		return true
	}
	return len(p.AllowedUsers) == 0 || slices.Contains(p.AllowedUsers, user)
}

// Describe renders p for audit detail lines.
func Describe(p model.AccessPolicy) string {
	users := "anyone"
	if len(p.AllowedUsers) > 0 {
		users = strings.Join(p.AllowedUsers, ",")
	}
	window := "always"
	if p.Window != nil {
		window = fmt.Sprintf("%s..%s", p.Window.Start.UTC().Format(time.RFC3339), p.Window.End.UTC().Format(time.RFC3339))
	}
	regions := "any"
	if len(p.AllowedRegions) > 0 {
		regions = strings.Join(p.AllowedRegions, ",")
	}
	return fmt.Sprintf("users=%s window=%s regions=%s", users, window, regions)
}

// ValidateWindow rejects a window whose end precedes its start.
func ValidateWindow(p model.AccessPolicy) error {
	if p.Window != nil && p.Window.End.Before(p.Window.Start) {
		return errs.Validation("policy.time_window", "end %s is before start %s",
			p.Window.End.Format(time.RFC3339), p.Window.Start.Format(time.RFC3339))
	}
	return nil
}

func deny(check, reason string) Decision {
	return Decision{Allowed: false, Check: check, Reason: reason}
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
