// Package domain provides the models shared by the classifier, adapters, merge engine and orchestrator.
package domain

import (
	"fmt"
	"time"
)

// IntegrationMethod is the extraction strategy used for a source.
type IntegrationMethod string

// Integration methods.
const (
	MethodFeed       IntegrationMethod = "feed"
	MethodAPI        IntegrationMethod = "api"
	MethodAggregator IntegrationMethod = "aggregator"
	MethodJSONLD     IntegrationMethod = "jsonld_only"
	MethodHTML       IntegrationMethod = "html"
	MethodPlaywright IntegrationMethod = "playwright"
	MethodLLM        IntegrationMethod = "llm_crawler"
	MethodUnknown    IntegrationMethod = "unknown"
)

var allMethods = []IntegrationMethod{
	MethodFeed, MethodAPI, MethodAggregator, MethodJSONLD,
	MethodHTML, MethodPlaywright, MethodLLM, MethodUnknown,
}

// Methods returns every known integration method.
func Methods() []IntegrationMethod {
	out := make([]IntegrationMethod, len(allMethods))
	copy(out, allMethods)
	return out
}

// ParseMethod converts s to an IntegrationMethod. An empty string is unknown.
func ParseMethod(s string) (IntegrationMethod, error) {
	if s == "" {
		return MethodUnknown, nil
	}
	for _, m := range allMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return MethodUnknown, fmt.Errorf("unknown integration method %q", s)
}

// RequiresRenderer reports whether sources using m need a headless browser.
func (m IntegrationMethod) RequiresRenderer() bool {
	return m == MethodPlaywright
}

// Source priorities by method. Higher wins attribution for descriptive fields.
const (
	PriorityAggregator = 10
	PriorityThirdParty = 20
	PriorityVenue      = 30
)

// DefaultPriority returns the attribution priority for a method.
func (m IntegrationMethod) DefaultPriority() int {
	switch m {
	case MethodAggregator:
		return PriorityAggregator
	case MethodAPI, MethodLLM, MethodUnknown:
		return PriorityThirdParty
	default:
		return PriorityVenue
	}
}

// Source is a crawl target.
type Source struct {
	ID                string            `db:"id"                 json:"id"`
	Slug              string            `db:"slug"               json:"slug"`
	Name              string            `db:"name"               json:"name"`
	URL               string            `db:"url"                json:"url"`
	IntegrationMethod IntegrationMethod `db:"integration_method" json:"integration_method"`
	MethodOverridden  bool              `db:"method_overridden"  json:"method_overridden"`
	IsActive          bool              `db:"is_active"          json:"is_active"`
	ProducerID        *string           `db:"producer_id"        json:"producer_id,omitempty"`
	Priority          int               `db:"priority"           json:"priority"`

	// Config holds adapter-specific options such as selector maps or a fixed venue.
	Config            JSONBMap   `db:"config"             json:"config,omitempty"`
	ClassifierSignals Signals    `db:"classifier_signals" json:"classifier_signals,omitempty"`
	AuditedAt         *time.Time `db:"audited_at"         json:"audited_at,omitempty"`
	DeactivatedReason *string    `db:"deactivated_reason" json:"deactivated_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EffectivePriority is the configured priority, or the method default when unset.
func (s *Source) EffectivePriority() int {
	if s.Priority > 0 {
		return s.Priority
	}
	return s.IntegrationMethod.DefaultPriority()
}

// ConfigString returns a string option from Config, or "" when absent.
func (s *Source) ConfigString(key string) string {
	if s.Config == nil {
		return ""
	}
	v, ok := s.Config[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Signal returns the detail of the named classifier signal.
func (s *Source) Signal(name string) (string, bool) {
	for _, sig := range s.ClassifierSignals {
		if sig.Name == name {
			return sig.Detail, true
		}
	}
	return "", false
}
