package days

import "github.com/google/uuid"

// IDProvider issues surrogate keys for content rows.
type IDProvider interface {
	NewID() (string, error)
}

// TimeOrderedIDs issues UUIDv7 keys, which sort in creation order.
type TimeOrderedIDs struct{}

// NewID returns a fresh UUIDv7 string.
func (TimeOrderedIDs) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
