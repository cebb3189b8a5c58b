package domain

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type profileKey struct{}

// ContextProfileKey is where a request's timing profile lives in a context.
var ContextProfileKey = profileKey{}

// Span is one timed step of a request, such as matching or blending.
type Span struct {
	Name    string    `json:"name"`
	startTs time.Time `json:"-"`
	Elapsed *int64    `json:"elapsedMs"`
}

func (s *Span) End() {
	if s.Elapsed == nil {
		t := time.Since(s.startTs).Milliseconds()
		s.Elapsed = &t
	}
}

// Profile is an ordered list of spans for a single request.
type Profile struct {
	mu      sync.Mutex
	Spans   []*Span   `json:"spans"`
	startTs time.Time `json:"-"`
	TotalMs *int64    `json:"totalMs"`
}

func NewProfile() (newProfile *Profile, endNewProfile func()) {
	newProfile = &Profile{
		Spans:   []*Span{},
		startTs: time.Now(),
	}
	return newProfile, newProfile.End
}

func NewCtxWithProfile(ctx context.Context) (context.Context, *Profile) {
	profile, _ := NewProfile()
	return context.WithValue(ctx, ContextProfileKey, profile), profile
}

// GetProfile returns the profile in ctx, or a detached one when the caller
// did not attach any, so timing calls never need a nil check.
func GetProfile(ctx context.Context) *Profile {
	if profile, ok := ctx.Value(ContextProfileKey).(*Profile); ok && profile != nil {
		return profile
	}
	profile, _ := NewProfile()
	return profile
}

func (p *Profile) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TotalMs == nil {
		t := time.Since(p.startTs).Milliseconds()
		p.TotalMs = &t
	}
}

// StartNewSpan ends the previous span and begins a new one
func (p *Profile) StartNewSpan(name string) (newSpan *Span, endSpan func()) {
	newSpan = &Span{
		Name:    name,
		startTs: time.Now(),
	}
	p.mu.Lock()
	if len(p.Spans) > 0 {
		p.Spans[len(p.Spans)-1].End()
	}
	p.Spans = append(p.Spans, newSpan)
	p.mu.Unlock()
	return newSpan, newSpan.End
}

func (p *Profile) ToJsonBytes() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(p.Spans)
}
