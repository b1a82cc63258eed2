package messages

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ripkitten-co/procview"
)

// DefaultDestinationTemplate is used for names without an explicit route.
const DefaultDestinationTemplate = "{app}.{name}"

// Resolver maps a logical message or connector name to the transport
// destination a runtime command is delivered to.
type Resolver struct {
	template string
	routes   map[string]string
}

type resolverFile struct {
	Default      string            `yaml:"default"`
	Destinations map[string]string `yaml:"destinations"`
}

func NewResolver() *Resolver {
	return &Resolver{template: DefaultDestinationTemplate, routes: map[string]string{}}
}

// ParseResolver reads a YAML mapping:
//
//	default: "{app}.{name}"
//	destinations:
//	  payment-received: billing.inbox
//	  loans:payment-received: loans.payments
//
// Keys are either a name or "app:name"; the latter wins.
func ParseResolver(data []byte) (*Resolver, error) {
	var f resolverFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("messages: destinations: %v: %w", err, procview.ErrValidation)
	}
	r := NewResolver()
	if f.Default != "" {
		r.template = f.Default
	}
	for k, v := range f.Destinations {
		if v == "" {
			return nil, fmt.Errorf("messages: destinations: empty destination for %q: %w", k, procview.ErrValidation)
		}
		r.routes[k] = v
	}
	return r, nil
}

func LoadResolver(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("messages: destinations: %w", err)
	}
	return ParseResolver(data)
}

func (r *Resolver) Resolve(app, name string) string {
	if d, ok := r.routes[app+":"+name]; ok {
		return d
	}
	if d, ok := r.routes[name]; ok {
		return d
	}
	return strings.NewReplacer("{app}", app, "{name}", name).Replace(r.template)
}
