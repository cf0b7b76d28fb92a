// Package registry provides directory implementations: a static one fed
// from configuration and a client for the common-reference operator.
package registry

import (
	"fmt"

	"github.com/kilianp07/usef/core/model"
)

// Entry describes one participant in a static directory.
type Entry struct {
	Role       string `json:"role"`
	Domain     string `json:"domain"`
	Endpoint   string `json:"endpoint"`
	PublicBlob string `json:"public_key"`
}

// StaticDirectory resolves participants from configured entries. It
// suits closed pilot setups where the participant set is known upfront.
type StaticDirectory struct {
	entries map[model.Participant]Entry
}

// NewStaticDirectory builds a directory from the given entries. Entries
// with an unknown role are rejected.
func NewStaticDirectory(entries []Entry) (*StaticDirectory, error) {
	m := make(map[model.Participant]Entry, len(entries))
	for _, e := range entries {
		role, ok := model.ParseRole(e.Role)
		if !ok {
			return nil, fmt.Errorf("directory entry %s: unknown role %q", e.Domain, e.Role)
		}
		m[model.Participant{Role: role, Domain: e.Domain}] = e
	}
	return &StaticDirectory{entries: m}, nil
}

// Endpoint returns the HTTP endpoint messages for p are posted to.
func (d *StaticDirectory) Endpoint(p model.Participant) (string, error) {
	e, ok := d.entries[p]
	if !ok || e.Endpoint == "" {
		return "", fmt.Errorf("no endpoint registered for %s", p)
	}
	return e.Endpoint, nil
}

// PublicBlob returns the cs1. combined public-key blob of p.
func (d *StaticDirectory) PublicBlob(p model.Participant) (string, error) {
	e, ok := d.entries[p]
	if !ok || e.PublicBlob == "" {
		return "", fmt.Errorf("no public key registered for %s", p)
	}
	return e.PublicBlob, nil
}
