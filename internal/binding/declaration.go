// Package binding materializes declared channel slots into a BindingSet:
// each slot resolves to a fresh channel or a shared one (bridged when the
// disciplines differ) and is bound to a transport binder under its logical
// name.
package binding

import (
	"fmt"
	"strings"

	"github.com/memohai/streambind/internal/channel"
)

// Direction says whether a slot consumes from or produces to transport.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Declaration is one named channel slot of a binding interface. The
// explicit list of declarations replaces annotation scanning: it carries
// the same name/direction/discipline/content-type information, processed
// once at materialization.
type Declaration struct {
	Name        string
	Direction   Direction
	Discipline  channel.Discipline
	ContentType string
}

func (d Declaration) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("slot name is required")
	}
	switch d.Direction {
	case DirectionInput, DirectionOutput:
	default:
		return fmt.Errorf("slot %s: unsupported direction %q", d.Name, d.Direction)
	}
	if _, err := channel.ParseDiscipline(string(d.Discipline)); err != nil {
		return fmt.Errorf("slot %s: %w", d.Name, err)
	}
	return nil
}

// Input declares an input slot.
func Input(name string, discipline channel.Discipline, contentType string) Declaration {
	return Declaration{Name: name, Direction: DirectionInput, Discipline: discipline, ContentType: contentType}
}

// Output declares an output slot.
func Output(name string, discipline channel.Discipline, contentType string) Declaration {
	return Declaration{Name: name, Direction: DirectionOutput, Discipline: discipline, ContentType: contentType}
}
