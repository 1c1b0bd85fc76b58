package correlate

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

// Workflow selects which rule families a scan evaluates.
type Workflow string

const (
	// WorkflowGeneral runs the suspect rule, then the domain-chain rule; first match wins.
	WorkflowGeneral Workflow = "general"
	// WorkflowSuspect runs only the suspect rule.
	WorkflowSuspect Workflow = "suspect"
	// WorkflowDomain runs only the domain-chain rule.
	WorkflowDomain Workflow = "domain"
	// WorkflowLocation runs only the location rule. It is never combined with the others.
	WorkflowLocation Workflow = "location"
)

// Rule classifies an unordered pair of entities. Match must be symmetric.
type Rule struct {
	Name  string
	Kind  string
	Match func(a, b apptype.Entity) bool
}

var (
	suspectRule = Rule{
		Name:  "suspect",
		Kind:  apptype.KindSuspectAssociation,
		Match: matchSuspect,
	}
	domainRule = Rule{
		Name:  "domain",
		Kind:  apptype.KindDomainAssociation,
		Match: matchDomainChain,
	}
	locationRule = Rule{
		Name:  "location",
		Kind:  apptype.KindLocationAssociation,
		Match: matchLocation,
	}
)

// ParseWorkflow maps a workflow name to its constant. An empty name means general.
func ParseWorkflow(name string) (Workflow, error) {
	switch w := Workflow(strings.ToLower(strings.TrimSpace(name))); w {
	case "":
		return WorkflowGeneral, nil
	case WorkflowGeneral, WorkflowSuspect, WorkflowDomain, WorkflowLocation:
		return w, nil
	}
	return "", fmt.Errorf("unknown correlation workflow %q", name)
}

// RulesFor returns the ordered rule list evaluated by a workflow.
func RulesFor(w Workflow) ([]Rule, error) {
	switch w {
	case WorkflowGeneral, "":
		return []Rule{suspectRule, domainRule}, nil
	case WorkflowSuspect:
		return []Rule{suspectRule}, nil
	case WorkflowDomain:
		return []Rule{domainRule}, nil
	case WorkflowLocation:
		return []Rule{locationRule}, nil
	}
	return nil, fmt.Errorf("unknown correlation workflow %q", w)
}

// Classify returns the first rule in priority order that matches the pair.
func Classify(rules []Rule, a, b apptype.Entity) (Rule, bool) {
	if a.ID != 0 && a.ID == b.ID {
		return Rule{}, false
	}
	for _, r := range rules {
		if r.Match(a, b) {
			return r, true
		}
	}
	return Rule{}, false
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

var suspectTargets = map[string]bool{
	apptype.TypeEmail:  true,
	apptype.TypeDomain: true,
	apptype.TypeHost:   true,
}

func matchSuspect(a, b apptype.Entity) bool {
	switch {
	case a.Type == apptype.TypeSuspect && suspectTargets[b.Type]:
	case b.Type == apptype.TypeSuspect && suspectTargets[a.Type]:
	default:
		return false
	}
	return containsEither(a.Name, b.Name)
}

func matchDomainChain(a, b apptype.Entity) bool {
	switch {
	case a.Type == apptype.TypeEmail && b.Type == apptype.TypeDomain:
		return strings.Contains(a.Name, b.Name)
	case a.Type == apptype.TypeDomain && b.Type == apptype.TypeEmail:
		return strings.Contains(b.Name, a.Name)
	case a.Type == apptype.TypeDomain && b.Type == apptype.TypeHost,
		a.Type == apptype.TypeHost && b.Type == apptype.TypeDomain:
		return containsEither(a.Name, b.Name)
	}
	return false
}

// IsAddressType reports whether t names a physical location.
func IsAddressType(t string) bool {
	return t == apptype.TypeAddress || t == apptype.TypePhysicalAddress
}

func matchLocation(a, b apptype.Entity) bool {
	return IsAddressType(a.Type) != IsAddressType(b.Type)
}
