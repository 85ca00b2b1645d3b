package protocol

import (
	"fmt"

	"github.com/otmiM/polymatic/internal/integrate"
)

type fixBuilder func(f FixConfig) []integrate.Coupling

// fixBuilders maps a fix type to its coupling constructors. An npt fix
// attaches a thermostat and a barostat as a pair.
var fixBuilders = map[string]fixBuilder{
	"nvt": func(f FixConfig) []integrate.Coupling {
		return []integrate.Coupling{
			integrate.NewNoseHoover("nvt", f.Tstart, f.Tstop, tdamp(f)),
		}
	},
	"npt": func(f FixConfig) []integrate.Coupling {
		return []integrate.Coupling{
			integrate.NewNoseHoover("npt_temp", f.Tstart, f.Tstop, tdamp(f)),
			integrate.NewIsobaric("npt_press", f.Pstart, f.Pstop, pdamp(f)),
		}
	},
}

func tdamp(f FixConfig) float64 {
	if f.Tdamp > 0 {
		return f.Tdamp
	}
	return DefaultTdamp
}

func pdamp(f FixConfig) float64 {
	if f.Pdamp > 0 {
		return f.Pdamp
	}
	return DefaultPdamp
}

// attachFixes builds and attaches all of a stage's couplings.
func attachFixes(reg *integrate.Registry, fixes []FixConfig) error {
	for _, f := range fixes {
		build, ok := fixBuilders[f.Type]
		if !ok {
			return fmt.Errorf("unknown fix type %q", f.Type)
		}
		for _, c := range build(f) {
			if err := reg.Attach(c); err != nil {
				return err
			}
		}
	}
	return nil
}
