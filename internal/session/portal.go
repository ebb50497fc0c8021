package session

import (
	"errors"
	"fmt"
	"strings"

	"zkcred-be/pkg/claim"
	"zkcred-be/pkg/extractor"
)

var (
	ErrUnknownPortal  = errors.New("unknown portal")
	ErrInvalidRequest = errors.New("invalid verification request")
)

// Portal binds one extractor to the claim it attests.
type Portal struct {
	Name       string
	RecordType string
	Claim      claim.Claim
	Extractor  extractor.Extractor
	// RequiresCredentials is false for public-profile portals, which take
	// a handle only.
	RequiresCredentials bool
}

// Catalogue is the fixed set of portals known at start-up.
type Catalogue struct {
	order   []string
	portals map[string]Portal
}

func NewCatalogue(portals ...Portal) (*Catalogue, error) {
	c := &Catalogue{portals: make(map[string]Portal, len(portals))}
	for _, p := range portals {
		if p.Name == "" || p.Extractor == nil {
			return nil, fmt.Errorf("portal %q: name and extractor are required", p.Name)
		}
		if err := p.Claim.Validate(); err != nil {
			return nil, fmt.Errorf("portal %q: %w", p.Name, err)
		}
		if _, dup := c.portals[p.Name]; dup {
			return nil, fmt.Errorf("portal %q registered twice", p.Name)
		}
		c.portals[p.Name] = p
		c.order = append(c.order, p.Name)
	}
	return c, nil
}

func (c *Catalogue) Lookup(name string) (Portal, bool) {
	p, ok := c.portals[name]
	return p, ok
}

// List returns portals in registration order.
func (c *Catalogue) List() []Portal {
	out := make([]Portal, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.portals[name])
	}
	return out
}

// Request is a validated start request.
type Request struct {
	Portal  string
	Auth    extractor.Auth
	OwnerID string
}

func (r Request) validate(p Portal) error {
	if strings.TrimSpace(r.Auth.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	if p.RequiresCredentials && r.Auth.Password == "" {
		return fmt.Errorf("%w: password is required for %s", ErrInvalidRequest, p.Name)
	}
	return nil
}
