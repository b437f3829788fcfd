package githubapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v71/github"
)

// IdentityError means the account or its organizations could not be resolved.
// A run that hits one must abort.
type IdentityError struct {
	Op  string
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("github identity: %s: %v", e.Op, e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// ResourceError describes why a per-resource listing came back empty.
type ResourceError struct {
	Resource string
	Owner    string
	Repo     string
	Number   int
	Err      error
}

func (e *ResourceError) Error() string {
	target := e.Owner
	if e.Repo != "" {
		target += "/" + e.Repo
	}
	if e.Number > 0 {
		target = fmt.Sprintf("%s#%d", target, e.Number)
	}
	return fmt.Sprintf("github %s %s: %v", e.Resource, target, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a synchronization run.
func IsFatal(err error) bool {
	var ie *IdentityError
	return errors.As(err, &ie)
}

// IsUnauthorized reports whether GitHub rejected the credential.
func IsUnauthorized(err error) bool {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode == http.StatusUnauthorized
	}
	return false
}
