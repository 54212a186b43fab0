package util

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxIDAttempts = 3

// GenID hands fresh random ids to try until it accepts one. try reports
// taken=true on a collision; any error aborts.
func GenID(try func(id string) (taken bool, err error)) (string, error) {
	for retry := 0; retry < maxIDAttempts; retry++ {
		id := NewPasteID()
		taken, err := try(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", errors.Errorf("id collision after %d retries", maxIDAttempts)
}

func NewPasteID() string {
	return uuid.NewString()
}
