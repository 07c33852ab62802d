package domain

import "fmt"

// Scope tells which data a connection is subscribed to.
type Scope int

const (
	// ScopeNone means nothing was requested; the connection still gets global pushes.
	ScopeNone Scope = iota
	ScopeGlobal
	ScopeArea
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeGlobal:
		return "global"
	case ScopeArea:
		return "area"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Subscription is the tagged variant None | Global | Area{bounds}.
// Area is only meaningful when Scope == ScopeArea.
type Subscription struct {
	Scope Scope
	Area  Bounds
}

// NoSubscription returns the None variant.
func NoSubscription() Subscription {
	return Subscription{Scope: ScopeNone}
}

// GlobalSubscription returns the Global variant.
func GlobalSubscription() Subscription {
	return Subscription{Scope: ScopeGlobal}
}

// AreaSubscription returns the Area variant for already validated bounds.
func AreaSubscription(b Bounds) Subscription {
	return Subscription{Scope: ScopeArea, Area: b}
}

// IsArea reports whether the subscription is area-scoped.
func (s Subscription) IsArea() bool {
	return s.Scope == ScopeArea
}

func (s Subscription) String() string {
	if s.IsArea() {
		return fmt.Sprintf("area[n=%v s=%v e=%v w=%v]", s.Area.North, s.Area.South, s.Area.East, s.Area.West)
	}
	return s.Scope.String()
}
