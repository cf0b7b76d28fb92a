// Package registry defines the participant directory: the lookup from a
// role and domain to a network endpoint and public-key material. The
// common-reference operator is the authoritative source; nodes may also
// run from a static, configuration-backed directory.
package registry

import "github.com/kilianp07/usef/core/model"

// Directory resolves counterpart participants.
type Directory interface {
	// Endpoint returns the HTTP endpoint messages for p are posted to.
	Endpoint(p model.Participant) (string, error)
	// PublicBlob returns the cs1. combined public-key blob of p.
	PublicBlob(p model.Participant) (string, error)
}
