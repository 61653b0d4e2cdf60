// Package config defines the read-only configuration surface consumed by
// the core (spec.md §6: "opaque to the core; consumed via a read-only
// interface"), plus one gopkg.in/ini.v1-backed implementation. Grounded on
// pkg/od/parser_v1.go's ini.v1-based EDS parsing in the teacher repo.
package config

import "github.com/opensand/rcs2mac/pkg/terminal"

// CarrierSpec is one carrier group's static configuration (spec.md §6
// "carriers plan per spot").
type CarrierSpec struct {
	CarriersID       uint8
	SymbolRateBauds  uint64
	CarriersCount    uint32
	AllowedModcodIDs []uint8
	NominalModcodID  uint8
	Ratio            float64
	AccessType       terminal.AccessType
}

// CategorySpec is one TerminalCategory's static configuration.
type CategorySpec struct {
	Label    string
	SpotID   uint16
	Carriers []CarrierSpec
}

// DamaParams are the DAMA-wide parameters (spec.md §6).
type DamaParams struct {
	FcaKbps float64
}

// AlohaParams are the Slotted-Aloha parameters (spec.md §6).
type AlohaParams struct {
	NbReplicas           uint8
	NbMaxPacketsPerFrame uint8
	TimeoutSuperframes   uint32
	NbMaxRetransmissions uint8
	SlotsPerSuperframe   uint16
	BackoffAlgorithm     string // "beb" or "eied"
	CwMin                uint32
	CwMax                uint32
	Multiple             uint32
}

// Reader is the read-only configuration interface the core consumes
// (spec.md §6).
type Reader interface {
	SuperframeDurationMs() uint32
	PacketBytes() uint32
	ModcodTablePath() string
	Categories() ([]CategorySpec, error)
	Dama() (DamaParams, error)
	Aloha() (AlohaParams, error)
	CarrierIDs() (CarrierIDs, error)
}

// CarrierIDs names the fixed carrier-id tags a spot uses to route frames
// (spec.md §6 "Carrier IDs").
type CarrierIDs struct {
	LogonID     uint8
	ControlID   uint8
	DataInST    uint8
	DataInGW    uint8
	DataOutST   uint8
	DataOutGW   uint8
}
