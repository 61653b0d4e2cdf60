package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/terminal"
)

// INIReader loads configuration from an ini-formatted file, mirroring the
// section-per-entity layout the teacher's EDS parser uses for object
// dictionary sections (pkg/od/parser_v1.go), here with `[category:<label>]`
// and `[carrier:<label>:<id>]` sections instead of `[<index>]`/`[<index>subN]`.
type INIReader struct {
	file *ini.File
}

// LoadINIReader parses path into an INIReader.
func LoadINIReader(path string) (*INIReader, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return &INIReader{file: f}, nil
}

func (r *INIReader) general() *ini.Section { return r.file.Section("general") }

// SuperframeDurationMs reads [general] superframe_duration_ms.
func (r *INIReader) SuperframeDurationMs() uint32 {
	return uint32(r.general().Key("superframe_duration_ms").MustUint(0))
}

// PacketBytes reads [general] packet_bytes.
func (r *INIReader) PacketBytes() uint32 {
	return uint32(r.general().Key("packet_bytes").MustUint(0))
}

// ModcodTablePath reads [general] modcod_table_path.
func (r *INIReader) ModcodTablePath() string {
	return r.general().Key("modcod_table_path").String()
}

// CarrierIDs reads the [carrier_ids] section.
func (r *INIReader) CarrierIDs() (CarrierIDs, error) {
	sec := r.file.Section("carrier_ids")
	if sec == nil || len(sec.Keys()) == 0 {
		return CarrierIDs{}, fmt.Errorf("%w: missing [carrier_ids] section", rcs2mac.ErrMissingParam)
	}
	return CarrierIDs{
		LogonID:   uint8(sec.Key("logon_id").MustUint(0)),
		ControlID: uint8(sec.Key("control_id").MustUint(0)),
		DataInST:  uint8(sec.Key("data_in_st").MustUint(0)),
		DataInGW:  uint8(sec.Key("data_in_gw").MustUint(0)),
		DataOutST: uint8(sec.Key("data_out_st").MustUint(0)),
		DataOutGW: uint8(sec.Key("data_out_gw").MustUint(0)),
	}, nil
}

// Dama reads the [dama] section.
func (r *INIReader) Dama() (DamaParams, error) {
	sec := r.file.Section("dama")
	return DamaParams{FcaKbps: sec.Key("fca_kbps").MustFloat64(0)}, nil
}

// Aloha reads the [aloha] section.
func (r *INIReader) Aloha() (AlohaParams, error) {
	sec := r.file.Section("aloha")
	return AlohaParams{
		NbReplicas:           uint8(sec.Key("nb_replicas").MustUint(2)),
		NbMaxPacketsPerFrame: uint8(sec.Key("nb_max_packets_per_frame").MustUint(1)),
		TimeoutSuperframes:   uint32(sec.Key("timeout_superframes").MustUint(3)),
		NbMaxRetransmissions: uint8(sec.Key("nb_max_retransmissions").MustUint(10)),
		SlotsPerSuperframe:   uint16(sec.Key("slots_per_superframe").MustUint(16)),
		BackoffAlgorithm:     sec.Key("backoff_algorithm").MustString("beb"),
		CwMin:                uint32(sec.Key("cw_min").MustUint(1)),
		CwMax:                uint32(sec.Key("cw_max").MustUint(64)),
		Multiple:             uint32(sec.Key("multiple").MustUint(2)),
	}, nil
}

// Categories walks every `[category:<label>]` section and its matching
// `[carrier:<label>:<id>]` sections, building the full carriers plan
// (spec.md §6).
func (r *INIReader) Categories() ([]CategorySpec, error) {
	var out []CategorySpec
	for _, sec := range r.file.Sections() {
		label, ok := strings.CutPrefix(sec.Name(), "category:")
		if !ok {
			continue
		}
		spotID := uint16(sec.Key("spot_id").MustUint(0))
		carriers, err := r.carriersFor(label)
		if err != nil {
			return nil, err
		}
		if len(carriers) == 0 {
			return nil, fmt.Errorf("%w: category %q has no [carrier:%s:*] sections", rcs2mac.ErrMissingParam, label, label)
		}
		out = append(out, CategorySpec{Label: label, SpotID: spotID, Carriers: carriers})
	}
	return out, nil
}

func (r *INIReader) carriersFor(label string) ([]CarrierSpec, error) {
	prefix := "carrier:" + label + ":"
	var out []CarrierSpec
	for _, sec := range r.file.Sections() {
		idStr, ok := strings.CutPrefix(sec.Name(), prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad carrier id in section %q", rcs2mac.ErrBadValue, sec.Name())
		}
		allowed, err := parseUint8List(sec.Key("allowed_modcod_ids").String())
		if err != nil {
			return nil, fmt.Errorf("%w: carrier %q allowed_modcod_ids: %v", rcs2mac.ErrBadValue, sec.Name(), err)
		}
		out = append(out, CarrierSpec{
			CarriersID:       uint8(id),
			SymbolRateBauds:  sec.Key("symbol_rate_bauds").MustUint64(0),
			CarriersCount:    uint32(sec.Key("carriers_count").MustUint(1)),
			AllowedModcodIDs: allowed,
			NominalModcodID:  uint8(sec.Key("nominal_modcod_id").MustUint(0)),
			Ratio:            sec.Key("ratio").MustFloat64(1.0),
			AccessType:       parseAccessType(sec.Key("access_type").MustString("dama")),
		})
	}
	return out, nil
}

func parseUint8List(raw string) ([]uint8, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	fields := strings.Split(raw, ",")
	out := make([]uint8, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

func parseAccessType(s string) terminal.AccessType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aloha":
		return terminal.AccessALOHA
	case "scpc":
		return terminal.AccessSCPC
	case "vcm":
		return terminal.AccessVCM
	default:
		return terminal.AccessDAMA
	}
}
