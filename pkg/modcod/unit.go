package modcod

// Converter implements C1 (UnitConverter): kbit/s <-> packets-per-superframe
// <-> symbols, parameterized by a MODCOD table and a superframe duration.
// All conversions round down to whole packets; the residue lost to rounding
// is returned separately as a credit, per spec.md §4.1.
type Converter struct {
	table               *Table
	superframeDurationMs uint32
	packetBytes         uint32
}

// NewConverter builds a Converter. packetBytes is the fixed size in bytes of
// one "packet" unit used throughout the allocation code (spec.md's pktpf).
func NewConverter(table *Table, superframeDurationMs uint32, packetBytes uint32) *Converter {
	return &Converter{table: table, superframeDurationMs: superframeDurationMs, packetBytes: packetBytes}
}

func (c *Converter) packetBits() float64 {
	return float64(c.packetBytes) * 8
}

// SuperframeDurationMs returns the superframe duration this converter was
// built with, in milliseconds.
func (c *Converter) SuperframeDurationMs() uint32 { return c.superframeDurationMs }

// Table returns the underlying MODCOD table.
func (c *Converter) Table() *Table { return c.table }

// KbpsToPktpf floors rate_kbps to whole packets per superframe for the
// given modcod, returning the leftover fractional packet's worth of rate in
// kbps as credit (spec.md §4.1).
func (c *Converter) KbpsToPktpf(rateKbps float64, modcodID uint8) (pkt uint32, creditKbps float64, err error) {
	if _, err = c.table.Def(modcodID); err != nil {
		return 0, 0, err
	}
	bitsPerSuperframe := rateKbps * 1000 * (float64(c.superframeDurationMs) / 1000)
	exact := bitsPerSuperframe / c.packetBits()
	whole := uint32(exact)
	residue := exact - float64(whole)
	if residue > 1.0 {
		// Rounding down lost more than one packet's worth: shouldn't happen
		// since residue < 1 by construction, kept as a defensive clamp.
		residue = 1.0
	}
	creditBitsPerSuperframe := residue * c.packetBits()
	creditKbps = creditBitsPerSuperframe / (float64(c.superframeDurationMs) / 1000) / 1000
	return whole, creditKbps, nil
}

// PktpfToKbps converts a whole packet-per-superframe count back to a kbps
// rate for the given modcod.
func (c *Converter) PktpfToKbps(pkt uint32, modcodID uint8) (float64, error) {
	if _, err := c.table.Def(modcodID); err != nil {
		return 0, err
	}
	bitsPerSuperframe := float64(pkt) * c.packetBits()
	return bitsPerSuperframe / (float64(c.superframeDurationMs) / 1000) / 1000, nil
}

// OnePacketKbps is the kbps value of exactly one packet at the given
// modcod's superframe cadence -- used as the credit bound in spec.md §4.7
// step B/invariant "credit bounded by one packet's worth of rate".
func (c *Converter) OnePacketKbps(modcodID uint8) (float64, error) {
	return c.PktpfToKbps(1, modcodID)
}

// SymToKbits converts a symbol count to kilobits at the given modcod's
// spectral efficiency (spec.md §4.1).
func (c *Converter) SymToKbits(sym uint64, modcodID uint8) (float64, error) {
	def, err := c.table.Def(modcodID)
	if err != nil {
		return 0, err
	}
	return float64(sym) * def.SpectralEfficiencyBpsPerSymbol / 1000, nil
}

// PktToKbits converts a packet count to kilobits.
func (c *Converter) PktToKbits(pkt uint32, modcodID uint8) (float64, error) {
	if _, err := c.table.Def(modcodID); err != nil {
		return 0, err
	}
	return float64(pkt) * c.packetBits() / 1000, nil
}

// SymbolsToPktpf converts a carrier's total symbol capacity for one
// superframe directly to packets-per-superframe: SymToKbits, then the bit
// count divided by the packet size, rounded down -- this is "Step A" of
// DamaCtrl (spec.md §4.7).
func (c *Converter) SymbolsToPktpf(sym uint64, modcodID uint8) (uint32, error) {
	kbits, err := c.SymToKbits(sym, modcodID)
	if err != nil {
		return 0, err
	}
	bitsPerSuperframe := kbits * 1000
	return uint32(bitsPerSuperframe / c.packetBits()), nil
}
