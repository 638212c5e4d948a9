package preset

import (
	"embed"
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/vsariola/patchbay"
)

//go:embed templates/*
var templateFS embed.FS

var dotTemplate = template.Must(template.New("base").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.dot"))

type dotData struct {
	patchbay.Preset
	Dashed map[string]bool
}

// WriteDOT renders the preset as a Graphviz digraph, one node per module and
// one edge per connection. If control is not nil, connections for which it
// returns true, i.e. modulation cables, are drawn dashed.
func WriteDOT(w io.Writer, p patchbay.Preset, control func(patchbay.Connection) bool) error {
	data := dotData{Preset: p, Dashed: map[string]bool{}}
	if control != nil {
		for _, c := range p.Connections {
			data.Dashed[c.ID] = control(c)
		}
	}
	if err := dotTemplate.ExecuteTemplate(w, "preset.dot", data); err != nil {
		return fmt.Errorf("could not render preset %q as dot: %w", p.Name, err)
	}
	return nil
}
