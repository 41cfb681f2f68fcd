// Package requestid issues identifiers for requests and plans.
package requestid

import "github.com/google/uuid"

func New() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
