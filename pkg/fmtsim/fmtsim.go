// Package fmtsim implements C12 (FmtSimulation): per-terminal CNI
// evolution that drives the MODCOD selection a terminal currently uses.
// Grounded on pkg/sync/sync.go's Process(timeDifferenceUs, timerNextUs)
// per-tick update shape in the teacher repo, re-targeted here from SYNC
// timing counters to CNI/MODCOD evolution.
package fmtsim

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opensand/rcs2mac/pkg/modcod"
)

// Source selects how a terminal's ESN0/CNI evolves each tick (spec.md
// §4.9).
type Source uint8

const (
	SourceNone Source = iota
	SourceFile
	SourceRandom
)

// Smoothing selects how a terminal's current CNI sample is combined with
// history, supplementing spec.md §4.9 with the original FmtSimulation's
// exponential CNI aging (see SPEC_FULL.md §5). Default is SmoothingLatest to
// match spec.md's literal "update current_input_modcod_id" tick()
// description.
type Smoothing uint8

const (
	SmoothingLatest Smoothing = iota
	SmoothingEWMA
)

// terminalState is one terminal's CNI tracking state.
type terminalState struct {
	modcodID   uint8
	cniDb      float32
	overridden bool    // set by RequireCni, consumed by the next tick
	pendingCni float32 // the sample RequireCni supplied for the next tick
	fileLines  *bufio.Scanner
	fileHandle *os.File
}

// Simulation is C12.
type Simulation struct {
	table     *modcod.Table
	source    Source
	smoothing Smoothing
	alpha     float64 // EWMA weight on the new sample, in (0,1]
	randMin   float32
	randMax   float32
	rng       *rand.Rand
	filePath  string

	terminals map[uint16]*terminalState
	log       *logrus.Entry
}

// Config configures a Simulation (spec.md §6 Configuration, supplemented).
type Config struct {
	Source       Source
	Smoothing    Smoothing
	EWMAAlpha    float64 // used only when Smoothing == SmoothingEWMA
	RandMinDb    float32
	RandMaxDb    float32
	FilePath     string // used only when Source == SourceFile
	Seed         int64
}

// New builds a Simulation bound to a MODCOD table.
func New(table *modcod.Table, cfg Config) *Simulation {
	alpha := cfg.EWMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &Simulation{
		table:     table,
		source:    cfg.Source,
		smoothing: cfg.Smoothing,
		alpha:     alpha,
		randMin:   cfg.RandMinDb,
		randMax:   cfg.RandMaxDb,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		filePath:  cfg.FilePath,
		terminals: make(map[uint16]*terminalState),
		log:       logrus.WithField("block", "fmtsim"),
	}
}

// AddTerminal registers a terminal with a starting modcod id, opening its
// file-source handle if configured.
func (s *Simulation) AddTerminal(talID uint16, initialModcodID uint8) error {
	st := &terminalState{modcodID: initialModcodID}
	if s.source == SourceFile {
		f, err := os.Open(s.filePath)
		if err != nil {
			return fmt.Errorf("fmtsim: opening cni file for tal %d: %w", talID, err)
		}
		st.fileHandle = f
		st.fileLines = bufio.NewScanner(f)
	}
	s.terminals[talID] = st
	return nil
}

// RemoveTerminal releases any resources held for a terminal on logoff.
func (s *Simulation) RemoveTerminal(talID uint16) {
	if st, ok := s.terminals[talID]; ok && st.fileHandle != nil {
		st.fileHandle.Close()
	}
	delete(s.terminals, talID)
}

// RequireCni externally overrides the next tick's sample for one terminal
// (e.g. a CNI value carried in a Sac frame), per spec.md §4.9.
func (s *Simulation) RequireCni(talID uint16, cniDb float32) {
	st, ok := s.terminals[talID]
	if !ok {
		return
	}
	st.pendingCni = cniDb
	st.overridden = true
}

// Tick advances the simulation by one superframe, updating every
// terminal's current_input_modcod_id per spec.md §4.9.
func (s *Simulation) Tick() {
	for talID, st := range s.terminals {
		sample, ok := s.nextSample(st)
		if !ok {
			continue
		}
		st.cniDb = s.combine(st, sample)
		id, err := s.table.BestIDFor(st.cniDb)
		if err != nil {
			s.log.WithField("tal_id", talID).WithError(err).Warn("no modcod fits current cni, keeping previous")
			continue
		}
		st.modcodID = id
	}
}

// nextSample returns this tick's raw CNI sample, or false if nothing
// changes (Source == None and no external override pending).
func (s *Simulation) nextSample(st *terminalState) (float32, bool) {
	if st.overridden {
		st.overridden = false
		return st.pendingCni, true
	}
	switch s.source {
	case SourceFile:
		if st.fileLines != nil && st.fileLines.Scan() {
			line := strings.TrimSpace(st.fileLines.Text())
			v, err := strconv.ParseFloat(line, 32)
			if err != nil {
				s.log.WithError(err).Warn("malformed cni file row, skipping")
				return 0, false
			}
			return float32(v), true
		}
		return 0, false
	case SourceRandom:
		if s.randMax <= s.randMin {
			return s.randMin, true
		}
		span := s.randMax - s.randMin
		return s.randMin + s.rng.Float32()*span, true
	default:
		return 0, false
	}
}

// combine applies the configured smoothing mode to the new sample.
func (s *Simulation) combine(st *terminalState, sample float32) float32 {
	if s.smoothing == SmoothingLatest || st.cniDb == 0 {
		return sample
	}
	return float32(s.alpha)*sample + float32(1-s.alpha)*st.cniDb
}

// CurrentModcodID returns the terminal's current input modcod id.
func (s *Simulation) CurrentModcodID(talID uint16) (uint8, bool) {
	st, ok := s.terminals[talID]
	if !ok {
		return 0, false
	}
	return st.modcodID, true
}
