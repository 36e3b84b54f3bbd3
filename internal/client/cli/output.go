package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Whoami is the printable view of the local session. The credential is
// never included.
type Whoami struct {
	Authenticated bool         `json:"authenticated" yaml:"authenticated"`
	Onboarded     bool         `json:"onboarded" yaml:"onboarded"`
	User          *models.User `json:"user,omitempty" yaml:"user,omitempty"`
	PendingEmail  string       `json:"pending_email,omitempty" yaml:"pending_email,omitempty"`
}

func NewWhoami(s models.Session, pendingEmail string) Whoami {
	return Whoami{
		Authenticated: s.Authenticated(),
		Onboarded:     s.Onboarded(),
		User:          s.User,
		PendingEmail:  pendingEmail,
	}
}

// Render writes v as JSON or YAML.
func Render(w io.Writer, v any, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
