package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/srg/gripsense/internal/frame"
	"github.com/srg/gripsense/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	idColor      = color.New(color.FgGreen)
	headerColor  = color.New(color.FgCyan, color.Bold)
	warnColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen, color.Bold)
)

// printer renders command output as colored text or as one JSON object per line. Text
// status lines share the writer with an optional progress line.
type printer struct {
	mu       sync.Mutex
	w        io.Writer
	errW     io.Writer
	format   string
	progress *ProgressPrinter
}

func newPrinter(w, errW io.Writer, format string) *printer {
	return &printer{w: w, errW: errW, format: format}
}

func (p *printer) json() bool {
	return p.format == config.FormatJSON
}

// startProgress shows a countdown on interactive text output. The returned func stops it.
func (p *printer) startProgress(prefix, phase string, d time.Duration) func() {
	if p.json() || !isTerminal(p.w) {
		return func() {}
	}
	pp := NewCountdownProgressPrinter(p.w, prefix, phase, d)
	pp.Start()

	p.mu.Lock()
	p.progress = pp
	p.mu.Unlock()

	return func() {
		pp.Stop()
		p.mu.Lock()
		p.progress = nil
		p.mu.Unlock()
	}
}

func (p *printer) setPhase(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress != nil {
		p.progress.SetPhase(phase)
	}
}

func (p *printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress != nil {
		p.progress.Println(s)
		return
	}
	fmt.Fprintln(p.w, s)
}

func (p *printer) object(kind string, fill func(m *orderedmap.OrderedMap[string, any])) {
	m := orderedmap.New[string, any]()
	m.Set("type", kind)
	fill(m)

	data, err := json.Marshal(m)
	if err != nil {
		p.warn(err)
		return
	}
	p.line(string(data))
}

func (p *printer) device(d discovery.DeviceRecord) {
	if p.json() {
		p.object("device", func(m *orderedmap.OrderedMap[string, any]) {
			m.Set("id", d.ID)
			m.Set("name", d.NameOrEmpty())
			m.Set("connectable", d.Connectable())
		})
		return
	}

	name := d.NameOrEmpty()
	if name == "" {
		name = "(unnamed)"
	}
	p.line(fmt.Sprintf("%s  %s", idColor.Sprintf("%-36s", d.ID), name))
}

func (p *printer) services(deviceID string, records []discovery.ServiceRecord) {
	if p.json() {
		for _, s := range records {
			p.object("service", func(m *orderedmap.OrderedMap[string, any]) {
				m.Set("device", deviceID)
				m.Set("uuid", s.UUID)
			})
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	headerColor.Fprintf(p.w, "Services of %s\n", deviceID)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUUID")
	for i, s := range records {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, s.UUID)
	}
	tw.Flush()
}

func (p *printer) characteristics(serviceUUID string, records []discovery.CharacteristicRecord) {
	if p.json() {
		for _, c := range records {
			p.object("characteristic", func(m *orderedmap.OrderedMap[string, any]) {
				m.Set("service", serviceUUID)
				m.Set("uuid", c.UUID)
				m.Set("name", c.DisplayName)
			})
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	headerColor.Fprintf(p.w, "Characteristics of %s\n", serviceUUID)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tNAME")
	for _, c := range records {
		fmt.Fprintf(tw, "%s\t%s\n", c.UUID, c.DisplayName)
	}
	tw.Flush()
}

func (p *printer) reading(r frame.SensorReading) {
	if p.json() {
		p.object("reading", func(m *orderedmap.OrderedMap[string, any]) {
			for _, f := range r.Fields() {
				m.Set(f.Name, jsonValue(f.Value))
			}
		})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	headerColor.Fprintf(p.w, "--- reading %d ---\n", r.Timestamp)
	tw := tabwriter.NewWriter(p.w, 0, 4, 1, ' ', 0)
	for _, f := range r.Fields() {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Name, f.Value)
	}
	tw.Flush()
}

// jsonValue keeps finite numbers numeric and quotes everything else (NaN, Inf).
func jsonValue(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return json.Number(v)
}

func (p *printer) success(format string, a ...any) {
	if p.json() {
		return
	}
	p.line(successColor.Sprintf(format, a...))
}

func (p *printer) info(format string, a ...any) {
	if p.json() {
		return
	}
	p.line(fmt.Sprintf(format, a...))
}

// warn reports a non-fatal error on the error writer.
func (p *printer) warn(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	warnColor.Fprintf(p.errW, "WARNING: %s\n", FormatUserError(err))
}
