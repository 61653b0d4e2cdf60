package modcod

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// LoadTableFile loads a MODCOD table from an ini file, one section per
// modcod, e.g.:
//
//	[modcod:4]
//	spectral_efficiency = 2.0
//	required_esn0_db = 4.5
//	burst_length_symbols = 536
//
// Grounded on pkg/od/parser_v1.go's ini.v1-backed EDS section parsing in the
// teacher repo.
func LoadTableFile(path string) (*Table, error) {
	log := logrus.WithField("block", "modcod").WithField("path", path)
	cfg, err := ini.Load(path)
	if err != nil {
		log.WithError(err).Error("failed to load modcod table file")
		return nil, fmt.Errorf("load modcod table %s: %w", path, err)
	}
	var defs []Def
	for _, section := range cfg.Sections() {
		var id int
		if _, scanErr := fmt.Sscanf(section.Name(), "modcod:%d", &id); scanErr != nil {
			continue
		}
		eff, err := section.Key("spectral_efficiency").Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: spectral_efficiency: %w", section.Name(), err)
		}
		esn0, err := section.Key("required_esn0_db").Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: required_esn0_db: %w", section.Name(), err)
		}
		burst, err := section.Key("burst_length_symbols").Uint()
		if err != nil {
			return nil, fmt.Errorf("%s: burst_length_symbols: %w", section.Name(), err)
		}
		defs = append(defs, Def{
			ID:                             uint8(id),
			SpectralEfficiencyBpsPerSymbol: eff,
			RequiredEsn0Db:                 float32(esn0),
			BurstLengthSymbols:             uint32(burst),
		})
	}
	return NewTable(defs)
}
