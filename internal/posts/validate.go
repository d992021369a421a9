package posts

import (
	"strings"
	"unicode/utf8"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/models"
)

func validateText(op, text string) error {
	if n := utf8.RuneCountInString(text); n > models.MaxTextLength {
		return apperr.Invalid(op, "text is %d characters, the limit is %d", n, models.MaxTextLength)
	}
	return nil
}

// validateHashtags requires each tag to start with '#' or contain '-'
func validateHashtags(op string, tags []string) error {
	for _, tag := range tags {
		if !strings.HasPrefix(tag, "#") && !strings.Contains(tag, "-") {
			return apperr.Invalid(op, "malformed hashtag %q", tag)
		}
	}
	return nil
}

func validatePatch(op string, patch models.PostPatch) error {
	if patch.Empty() {
		return apperr.Invalid(op, "nothing to update")
	}
	if patch.Text != nil {
		if err := validateText(op, *patch.Text); err != nil {
			return err
		}
	}
	if patch.Hashtags != nil {
		if err := validateHashtags(op, *patch.Hashtags); err != nil {
			return err
		}
	}
	return nil
}
