package config

import (
	"fmt"

	"github.com/kilianp07/usef/core/model"
)

// ParticipantRef names a counterpart participant.
type ParticipantRef struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
}

// Participant resolves the reference to a model participant.
func (p ParticipantRef) Participant() (model.Participant, error) {
	role, ok := model.ParseRole(p.Role)
	if !ok {
		return model.Participant{}, fmt.Errorf("unknown role %q", p.Role)
	}
	return model.Participant{Role: role, Domain: p.Domain}, nil
}

// GroupRef declares one connection group the node tracks.
type GroupRef struct {
	ID    string         `json:"id"`
	Owner ParticipantRef `json:"owner"`
}

// NodeConfig identifies the local role instance.
type NodeConfig struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
	// MinSignatureVersion refuses startup against an older signature
	// scheme implementation.
	MinSignatureVersion string     `json:"min_signature_version"`
	Groups              []GroupRef `json:"groups"`
	// MeterRecipients lists where an MDC node sends meter data sets.
	MeterRecipients []ParticipantRef `json:"meter_recipients"`
}

// SetDefaults applies startup defaults.
func (c *NodeConfig) SetDefaults() {
	if c.MinSignatureVersion == "" {
		c.MinSignatureVersion = "1.0.0"
	}
}

// Validate checks the node identity.
func (c NodeConfig) Validate() error {
	if _, ok := model.ParseRole(c.Role); !ok {
		return fmt.Errorf("node role %q is not a USEF role", c.Role)
	}
	if c.Domain == "" {
		return fmt.Errorf("node domain must be set")
	}
	for _, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("connection group without id")
		}
		if _, err := g.Owner.Participant(); err != nil {
			return fmt.Errorf("connection group %s: %w", g.ID, err)
		}
	}
	for _, r := range c.MeterRecipients {
		if _, err := r.Participant(); err != nil {
			return err
		}
	}
	return nil
}

// Me returns the local participant.
func (c NodeConfig) Me() (model.Participant, error) {
	role, ok := model.ParseRole(c.Role)
	if !ok {
		return model.Participant{}, fmt.Errorf("node role %q is not a USEF role", c.Role)
	}
	return model.Participant{Role: role, Domain: c.Domain}, nil
}

// ConnectionGroups resolves the configured groups.
func (c NodeConfig) ConnectionGroups() ([]model.ConnectionGroup, error) {
	out := make([]model.ConnectionGroup, 0, len(c.Groups))
	for _, g := range c.Groups {
		owner, err := g.Owner.Participant()
		if err != nil {
			return nil, fmt.Errorf("connection group %s: %w", g.ID, err)
		}
		out = append(out, model.ConnectionGroup{ID: g.ID, Owner: owner})
	}
	return out, nil
}
