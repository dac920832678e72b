package ports

import (
	"context"

	"github.com/mikey/link-risk-engine/internal/core"
)

// ScanFilter defines the interface for front ends that scan mail for risky links
type ScanFilter interface {
	// ScanMessage scores the links in a message and returns the report
	ScanMessage(ctx context.Context, msg *core.Message) (*core.LinkReport, error)

	// Start starts the filter service
	Start() error

	// Stop stops the filter service
	Stop() error
}
