package relay

import (
	"fmt"

	"github.com/samber/lo"

	"linerelay/internal/domain"
)

// Uncategorized is the label used when the classifier finds nothing.
const Uncategorized = "uncategorized"

// TopLabel picks the highest-confidence label. ok is false for an empty list.
func TopLabel(labels []domain.Label) (top domain.Label, ok bool) {
	if len(labels) == 0 {
		return domain.Label{}, false
	}
	return lo.MaxBy(labels, func(a, b domain.Label) bool {
		return a.Confidence > b.Confidence
	}), true
}

func textReply(displayName, text string) string {
	return fmt.Sprintf("Display name: %s, Message: %s", displayName, text)
}

// imageReply describes a stored image. label is nil when no classifier ran.
func imageReply(displayName string, label *domain.Label) string {
	saved := fmt.Sprintf("Saved the image from %s!", displayName)
	switch {
	case label == nil:
		return saved
	case label.Name == Uncategorized:
		return saved + " I couldn't tell what it is (uncategorized)."
	default:
		return fmt.Sprintf("%s It looks like %s (%.2f%%).", saved, label.Name, label.Confidence)
	}
}
