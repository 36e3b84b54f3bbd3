// Package guard decides, for every navigation target, whether to render it
// or where to redirect, from the session state alone.
//
// Decide is the whole authorization contract. Public, OnboardingOnly and
// Protected are thin adapters over it, one per route class.
package guard

import (
	"fmt"

	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
)

// Class is a route guard class.
type Class int

const (
	ClassPublic Class = iota
	ClassOnboardingOnly
	ClassProtected
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassOnboardingOnly:
		return "onboarding-only"
	case ClassProtected:
		return "protected"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Navigation targets the guard redirects to.
const (
	PathLogin      = "/login"
	PathOnboarding = "/onboarding"
	PathDashboard  = "/dashboard"
)

// Outcome is the kind of Decision.
type Outcome int

const (
	ShowLoading Outcome = iota
	Render
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case ShowLoading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the guard's answer. Target is set only for Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

func (d Decision) String() string {
	if d.Outcome == Redirect {
		return "redirect " + d.Target
	}
	return d.Outcome.String()
}

// State is the guard input.
type State struct {
	Loading       bool
	Authenticated bool
	Onboarded     bool
}

// StateOf derives guard input from a session snapshot. A credential whose
// user has not been fetched yet counts as not onboarded.
func StateOf(s models.Session) State {
	return State{
		Loading:       s.Loading,
		Authenticated: s.Authenticated(),
		Onboarded:     s.Authenticated() && s.Onboarded(),
	}
}

func render() Decision              { return Decision{Outcome: Render} }
func redirect(path string) Decision { return Decision{Outcome: Redirect, Target: path} }

// Decide maps (class, state) to a decision:
//
//	class           | loading | anonymous    | not onboarded | onboarded
//	public          | wait    | render       | → onboarding  | → dashboard
//	onboarding-only | wait    | → login      | render        | → dashboard
//	protected       | wait    | → login      | → onboarding  | render
//
// Unknown classes are treated as protected.
func Decide(c Class, s State) Decision {
	if s.Loading {
		return Decision{Outcome: ShowLoading}
	}

	switch c {
	case ClassPublic:
		switch {
		case !s.Authenticated:
			return render()
		case !s.Onboarded:
			return redirect(PathOnboarding)
		default:
			return redirect(PathDashboard)
		}
	case ClassOnboardingOnly:
		switch {
		case !s.Authenticated:
			return redirect(PathLogin)
		case !s.Onboarded:
			return render()
		default:
			return redirect(PathDashboard)
		}
	default:
		switch {
		case !s.Authenticated:
			return redirect(PathLogin)
		case !s.Onboarded:
			return redirect(PathOnboarding)
		default:
			return render()
		}
	}
}

func Public(s State) Decision         { return Decide(ClassPublic, s) }
func OnboardingOnly(s State) Decision { return Decide(ClassOnboardingOnly, s) }
func Protected(s State) Decision      { return Decide(ClassProtected, s) }

// ForClass returns the adapter for c.
func ForClass(c Class) func(State) Decision {
	switch c {
	case ClassPublic:
		return Public
	case ClassOnboardingOnly:
		return OnboardingOnly
	default:
		return Protected
	}
}
