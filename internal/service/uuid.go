package service

import "github.com/google/uuid"

// DefaultUUIDGenerator generates identifiers via google/uuid
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
