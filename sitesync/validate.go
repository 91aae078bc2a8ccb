package sitesync

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/sitesync/horosafe"
	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
)

const (
	maxURLLen        = 4096
	maxIntervalHours = 24 * 365
	defaultInterval  = 24

	defaultListLimit = 20
	maxListLimit     = 100
)

func validateID(kind, id string) error {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, kind, err)
	}
	return nil
}

// validateConfig checks c and fills the interval default.
func validateConfig(c *SyncConfig) error {
	if err := validateID("company_id", c.CompanyID); err != nil {
		return err
	}
	c.WebsiteURL = strings.TrimSpace(c.WebsiteURL)
	if c.SyncIntervalHours == 0 {
		c.SyncIntervalHours = defaultInterval
	}
	if c.SyncIntervalHours < 1 || c.SyncIntervalHours > maxIntervalHours {
		return fmt.Errorf("%w: sync_interval_hours must be between 1 and %d", ErrInvalidInput, maxIntervalHours)
	}
	if len(c.WebsiteURL) > maxURLLen {
		return fmt.Errorf("%w: website_url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	if c.Enabled && c.WebsiteURL == "" {
		return fmt.Errorf("%w: website_url is required when sync is enabled", ErrInvalidInput)
	}
	if c.WebsiteURL != "" {
		if _, err := horosafe.CheckURLShape(c.WebsiteURL); err != nil {
			return fmt.Errorf("%w: website_url: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

func validateEntry(question, answer string) (string, string, error) {
	q, a := candidate.Clean(question), candidate.Clean(answer)
	switch {
	case q == "" || a == "":
		return "", "", fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	case len([]rune(q)) > candidate.MaxQuestionLen:
		return "", "", fmt.Errorf("%w: question exceeds %d characters", ErrInvalidInput, candidate.MaxQuestionLen)
	case len([]rune(a)) > candidate.MaxAnswerLen:
		return "", "", fmt.Errorf("%w: answer exceeds %d characters", ErrInvalidInput, candidate.MaxAnswerLen)
	}
	return q, a, nil
}

func validateStatus(kind, status string, allowed ...string) error {
	if status == "" {
		return nil
	}
	for _, s := range allowed {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q", ErrInvalidInput, kind, status)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
