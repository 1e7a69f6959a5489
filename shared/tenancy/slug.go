package tenancy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const fallbackSlug = "organization"

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugHyphens      = regexp.MustCompile(`-+`)
)

// GenerateSlug turns an organization name into a URL-safe key
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// SlugAvailability reports whether a slug is free to use
type SlugAvailability func(ctx context.Context, slug string) (bool, error)

// UniqueSlug returns the slug for name, appending -1, -2, ... until available
// reports a free one.
func UniqueSlug(ctx context.Context, name string, available SlugAvailability) (string, error) {
	base := GenerateSlug(name)
	if base == "" {
		base = fallbackSlug
	}

	slug := base
	for counter := 1; ; counter++ {
		ok, err := available(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug availability: %w", err)
		}
		if ok {
			return slug, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}
