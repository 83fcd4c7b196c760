package domain

import "fmt"

// BuildRecipients returns the notification list for an unlocked capsule:
// the owner address first (when known), then each collaborator address in
// stored order.
//
// Collaborators are NOT deduplicated against the owner or each other; an
// owner who also appears as a collaborator receives two entries.
func BuildRecipients(ownerEmail string, collaborators []string) []string {
	out := make([]string, 0, len(collaborators)+1)
	if ownerEmail != "" {
		out = append(out, ownerEmail)
	}
	for _, addr := range collaborators {
		if addr == "" {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// UnlockSubject is the notification subject for an unlocked capsule.
func UnlockSubject(title string) string {
	return fmt.Sprintf("Your time capsule %q is now open", title)
}

// UnlockBody is the plain-text notification body for an unlocked capsule.
func UnlockBody(c *Capsule, recipients []string) string {
	return fmt.Sprintf(
		"The capsule %q sealed on %s has unlocked.\nShared with: %d recipient(s).\n",
		c.Title,
		c.CreatedAt.UTC().Format("January 2, 2006"),
		len(recipients),
	)
}
