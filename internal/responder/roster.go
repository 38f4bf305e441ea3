// Package responder holds the responder roster and produces replies in a
// responder's voice.
package responder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xaenox/thread-router/internal/models"
)

// Roster is the static, read-only set of responders. Lookups ignore case.
type Roster struct {
	byName map[string]models.Responder
	order  []string
}

func NewRoster(responders []models.Responder) (*Roster, error) {
	r := &Roster{byName: make(map[string]models.Responder, len(responders))}
	for _, p := range responders {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("responder without a name")
		}
		key := strings.ToLower(p.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate responder %q", p.Name)
		}
		r.byName[key] = p
		r.order = append(r.order, key)
	}
	return r, nil
}

// Lookup returns the responder registered under name, ignoring case.
func (r *Roster) Lookup(name string) (models.Responder, bool) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// All returns the responders in registration order.
func (r *Roster) All() []models.Responder {
	out := make([]models.Responder, len(r.order))
	for i, key := range r.order {
		out[i] = r.byName[key]
	}
	return out
}

// Names returns the responder mention names in registration order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.order))
	for i, key := range r.order {
		names[i] = r.byName[key].Name
	}
	return names
}

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)

// Mentioned returns the first known responder named with an @mention in
// content. Mentions of unknown names are ignored.
func (r *Roster) Mentioned(content string) (models.Responder, bool) {
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if p, ok := r.Lookup(m[1]); ok {
			return p, true
		}
	}
	return models.Responder{}, false
}
