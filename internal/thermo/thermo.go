// Package thermo derives thermodynamic properties from the particle state and
// emits periodic summary records to pluggable sinks.
package thermo

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/topology"
	"github.com/otmiM/polymatic/internal/units"
)

// KineticEnergy returns the total kinetic energy in kcal/mol.
func KineticEnergy(sys *topology.System) float64 {
	ke := 0.0
	for i := 0; i < sys.N; i++ {
		v2 := sys.Vel[3*i]*sys.Vel[3*i] + sys.Vel[3*i+1]*sys.Vel[3*i+1] + sys.Vel[3*i+2]*sys.Vel[3*i+2]
		ke += sys.Mass[i] * v2
	}
	return 0.5 * units.Mvv2e * ke
}

// Temperature returns the instantaneous kinetic temperature in Kelvin.
func Temperature(sys *topology.System) float64 {
	return 2 * KineticEnergy(sys) / (float64(sys.DOF()) * units.Boltz)
}

// Pressure returns the internal (virial) pressure in atmospheres.
func Pressure(sys *topology.System, virial float64) float64 {
	v := sys.Box.Volume()
	return units.Nktv2p * (2*KineticEnergy(sys)/3 + virial/3) / v
}

// Record is one periodic thermodynamic summary.
type Record struct {
	Step   int
	Time   float64 // fs
	Volume float64
	Temp   float64
	Press  float64
	TotEng float64
	PotEng float64
	KinEng float64
	EVdwl  float64
	ECoul  float64
	EBond  float64
	EAngle float64
	EDihed float64
	EImp   float64
}

// NewRecord assembles a Record from the current state and the last force
// evaluation.
func NewRecord(sys *topology.System, res forcefield.Result, step int, time float64) Record {
	ke := KineticEnergy(sys)
	pot := res.E.Potential()
	return Record{
		Step:   step,
		Time:   time,
		Volume: sys.Box.Volume(),
		Temp:   Temperature(sys),
		Press:  Pressure(sys, res.Virial),
		TotEng: pot + ke,
		PotEng: pot,
		KinEng: ke,
		EVdwl:  res.E.VdW,
		ECoul:  res.E.Coul(),
		EBond:  res.E.Bond,
		EAngle: res.E.Angle,
		EDihed: res.E.Dihedral,
		EImp:   res.E.Improper,
	}
}

// Fields lists the record columns in output order.
var Fields = []string{
	"step", "time", "volume", "temp", "press",
	"etotal", "pe", "ke", "evdwl", "ecoul",
	"ebond", "eangle", "edihed", "eimp",
}

func (r Record) values() []float64 {
	return []float64{
		float64(r.Step), r.Time, r.Volume, r.Temp, r.Press,
		r.TotEng, r.PotEng, r.KinEng, r.EVdwl, r.ECoul,
		r.EBond, r.EAngle, r.EDihed, r.EImp,
	}
}

// Field returns a column by name.
func (r Record) Field(name string) (float64, bool) {
	for i, f := range Fields {
		if f == name {
			return r.values()[i], true
		}
	}
	return 0, false
}

// Sink consumes periodic records.
type Sink interface {
	Emit(Record)
}

// Table writes aligned text columns, one header per instance.
type Table struct {
	w      *tabwriter.Writer
	header bool
}

func NewTable(out io.Writer) *Table {
	return &Table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)}
}

func (t *Table) Emit(r Record) {
	if !t.header {
		fmt.Fprintln(t.w, "step\ttemp\tpress\tvolume\tetotal\tpe\tke\t")
		t.header = true
	}
	fmt.Fprintf(t.w, "%d\t%.2f\t%.1f\t%.1f\t%.4f\t%.4f\t%.4f\t\n",
		r.Step, r.Temp, r.Press, r.Volume, r.TotEng, r.PotEng, r.KinEng)
	t.w.Flush()
}

// CSV writes every column of every record.
type CSV struct {
	w      *csv.Writer
	header bool
}

func NewCSV(out io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(out)}
}

func (c *CSV) Emit(r Record) {
	if !c.header {
		c.w.Write(Fields)
		c.header = true
	}
	row := make([]string, 0, len(Fields))
	row = append(row, strconv.Itoa(r.Step))
	for _, v := range r.values()[1:] {
		row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
	}
	c.w.Write(row)
	c.w.Flush()
}

// Trace keeps records in memory for plotting and statistics.
type Trace struct {
	Records []Record
}

func (t *Trace) Emit(r Record) { t.Records = append(t.Records, r) }

// Series extracts one column across all records.
func (t *Trace) Series(name string) []float64 {
	out := make([]float64, 0, len(t.Records))
	for _, r := range t.Records {
		v, ok := r.Field(name)
		if !ok {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// Mean is the time average of a column.
func (t *Trace) Mean(name string) float64 {
	s := t.Series(name)
	if len(s) == 0 {
		return 0
	}
	return stat.Mean(s, nil)
}

// StdDev is the standard deviation of a column.
func (t *Trace) StdDev(name string) float64 {
	s := t.Series(name)
	if len(s) < 2 {
		return 0
	}
	return stat.StdDev(s, nil)
}

// Multi fans records out to several sinks.
type Multi []Sink

func (m Multi) Emit(r Record) {
	for _, s := range m {
		s.Emit(r)
	}
}
