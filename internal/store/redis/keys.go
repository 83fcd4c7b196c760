package redis

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// KeyPrefixOwned is the prefix for cached owner listings
	KeyPrefixOwned = "capsule:listing:owned:"
	// KeyPrefixShared is the prefix for cached shared-with listings
	KeyPrefixShared = "capsule:listing:shared:"
	// KeyPrefixLease is the prefix for job leases
	KeyPrefixLease = "capsule:lease:"
	// KeyOrphans is the set of storage paths waiting for deletion
	KeyOrphans = "capsule:storage:orphans"
)

// OwnedKey returns the Redis key for the listing of capsules owned by userID
func OwnedKey(userID uuid.UUID) string {
	return KeyPrefixOwned + userID.String()
}

// SharedKey returns the Redis key for the listing of capsules shared with
// email. Emails are compared case-insensitively.
func SharedKey(email string) string {
	return KeyPrefixShared + strings.ToLower(strings.TrimSpace(email))
}

// LeaseKey returns the Redis key for the named job lease
func LeaseKey(name string) string {
	return KeyPrefixLease + name
}

// OrphansKey returns the key for the set of orphaned storage paths
func OrphansKey() string {
	return KeyOrphans
}
