package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIsWhitelisted(t *testing.T) {
	checker := NewChecker([]string{" Example.COM ", "intranet.local.", "", "*.corp.test", "10.0.0.1", "bücher.de"}, zap.NewNop())

	tests := []struct {
		host     string
		expected bool
	}{
		{"example.com", true},
		{"EXAMPLE.com.", true},
		{"mail.example.com", true},
		{"a.b.mail.example.com", true},
		{"badexample.com", false},
		{"example.com.evil.tk", false},
		{"intranet.local", true},
		{"corp.test", true},
		{"vpn.corp.test", true},
		{"10.0.0.1", true},
		{"10.0.0.2", false},
		{"shop.xn--bcher-kva.de", true},
		{"bücher.de", true},
		{"com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.IsWhitelisted(tt.host))
		})
	}
}

func TestEmptyChecker(t *testing.T) {
	var nilChecker *Checker
	assert.False(t, nilChecker.IsWhitelisted("example.com"))
	assert.False(t, NewChecker(nil, nil).IsWhitelisted("example.com"))
}
