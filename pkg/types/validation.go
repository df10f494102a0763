package types

import "regexp"

// MaxPayloadBytes caps a single inbound event payload (64KB)
const MaxPayloadBytes = 65536

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// since every join and mutation passes through it
var projectCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the join payload before any lookup is attempted
func (r *JoinRequest) Validate() error {
	if !IsValidProjectCode(r.ProjectCode) {
		return ErrInvalidProjectCode
	}
	if len(r.IdentityID) < 1 || len(r.IdentityID) > 100 {
		return ErrInvalidIdentity
	}
	if len(r.Name) > 200 {
		return ErrInvalidIdentity
	}
	return nil
}

// Validate checks the leave payload
func (r *LeaveRequest) Validate() error {
	if !IsValidProjectCode(r.ProjectCode) {
		return ErrInvalidProjectCode
	}
	return nil
}

// IsValidProjectCode checks a project code meets format requirements.
// FUNCTIONAL DISCOVERY: Codes are short, URL-safe room keys; anything else
// can never match a stored project so it is rejected without a lookup
func IsValidProjectCode(code string) bool {
	if len(code) < 1 || len(code) > 50 {
		return false
	}
	return projectCodeRegex.MatchString(code)
}
