package classifier

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by Predict on a classifier that cannot serve
var ErrUnavailable = errors.New("classifier unavailable")

// Unavailable is the classifier used when none is configured or loading failed
type Unavailable struct {
	reason string
}

// NewUnavailable creates an unavailable classifier
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{reason: reason}
}

// Available always reports false
func (u *Unavailable) Available() bool { return false }

// Predict always fails
func (u *Unavailable) Predict(ctx context.Context, text string) (string, float64, error) {
	if u.reason == "" {
		return "", 0, ErrUnavailable
	}
	return "", 0, fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

// Reason explains why the classifier is unavailable
func (u *Unavailable) Reason() string { return u.reason }
