// Command gwcore runs the gateway side of the return link: the DAMA
// controller, the Slotted-Aloha NCC and the per-superframe scheduler, wired
// together from an ini configuration file. Grounded on cmd/canopen/main.go's
// flag-parse-then-wire-then-run shape in the teacher repo, rebuilt around
// spf13/cobra the way cmd/plugins.go in the caddy examples wires flags onto
// a root command.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/aloha"
	"github.com/opensand/rcs2mac/pkg/clock"
	"github.com/opensand/rcs2mac/pkg/config"
	"github.com/opensand/rcs2mac/pkg/dama"
	"github.com/opensand/rcs2mac/pkg/encap"
	"github.com/opensand/rcs2mac/pkg/fmtsim"
	"github.com/opensand/rcs2mac/pkg/modcod"
	"github.com/opensand/rcs2mac/pkg/node"
	"github.com/opensand/rcs2mac/pkg/probe"
	"github.com/opensand/rcs2mac/pkg/scheduler"
	"github.com/opensand/rcs2mac/pkg/terminal"
)

// udpSink is a minimal rcs2mac.FrameSink writing encoded DvbFrames to a UDP
// peer, standing in for the real satellite carrier transport (spec.md §1
// "the actual UDP sat-carrier delivery is an external collaborator").
type udpSink struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	log  *logrus.Entry
}

func (s *udpSink) Send(f *rcs2mac.DvbFrame) error {
	buf, err := f.Encode()
	if err != nil {
		return err
	}
	if s.peer == nil {
		s.log.WithField("bytes", len(buf)).Debug("no peer configured, dropping frame")
		return nil
	}
	_, err = s.conn.WriteToUDP(buf, s.peer)
	return err
}

func main() {
	var (
		configPath  string
		metricsAddr string
		logLevel    string
		peerAddr    string
	)

	root := &cobra.Command{
		Use:   "gwcore",
		Short: "run the gateway return-link core (DAMA + Slotted-Aloha NCC + scheduler)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, metricsAddr, logLevel, peerAddr)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "rcs2mac.ini", "path to the gateway ini configuration")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9110", "address to serve /metrics on")
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	root.Flags().StringVar(&peerAddr, "peer", "", "UDP address of the satellite carrier peer (host:port)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr, logLevel, peerAddr string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)
	log := logrus.WithField("block", "gwcore")

	reader, err := config.LoadINIReader(configPath)
	if err != nil {
		return err
	}
	table, err := modcod.LoadTableFile(reader.ModcodTablePath())
	if err != nil {
		return err
	}
	conv := modcod.NewConverter(table, reader.SuperframeDurationMs(), reader.PacketBytes())

	carrierIDs, err := reader.CarrierIDs()
	if err != nil {
		return err
	}
	damaParams, err := reader.Dama()
	if err != nil {
		return err
	}
	alohaParams, err := reader.Aloha()
	if err != nil {
		return err
	}
	catSpecs, err := reader.Categories()
	if err != nil {
		return err
	}
	if len(catSpecs) == 0 {
		return fmt.Errorf("%w: configuration has no categories", rcs2mac.ErrMissingParam)
	}

	categories := make([]*terminal.Category, 0, len(catSpecs))
	for _, cs := range catSpecs {
		groups := make([]*terminal.CarriersGroup, 0, len(cs.Carriers))
		for _, carrier := range cs.Carriers {
			groups = append(groups, &terminal.CarriersGroup{
				CarriersID:       carrier.CarriersID,
				SpotID:           cs.SpotID,
				SymbolRateBauds:  carrier.SymbolRateBauds,
				CarriersCount:    carrier.CarriersCount,
				AllowedModcodIDs: carrier.AllowedModcodIDs,
				NominalModcodID:  carrier.NominalModcodID,
				Ratio:            carrier.Ratio,
				AccessType:       carrier.AccessType,
			})
		}
		cat, err := terminal.NewCategory(cs.Label, cs.SpotID, groups)
		if err != nil {
			return err
		}
		categories = append(categories, cat)
	}

	registry := probe.NewRegistry("rcs2mac")

	ctrl := dama.NewController(conv, dama.Params{FcaKbps: damaParams.FcaKbps})
	ctrl.SetSink(registry)
	sim := fmtsim.New(table, fmtsim.Config{Source: fmtsim.SourceNone})

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("opening data-plane socket: %w", err)
	}
	defer conn.Close()

	var peer *net.UDPAddr
	if peerAddr != "" {
		peer, err = net.ResolveUDPAddr("udp", peerAddr)
		if err != nil {
			return fmt.Errorf("resolving --peer %q: %w", peerAddr, err)
		}
	}
	sink := &udpSink{conn: conn, peer: peer, log: log}

	handler := encap.LengthPrefixed{}
	sched, err := scheduler.New(categories[0].SpotID, conv, ctrl, sim, handler, sink, carrierIDs.DataOutGW)
	if err != nil {
		return err
	}
	sched.SetSink(registry)
	for _, cat := range categories {
		sched.AddCategory(cat)
	}

	period := time.Duration(reader.SuperframeDurationMs()) * time.Millisecond
	clk := clock.New(period)
	ncc := aloha.NewNcc(categories[0].SpotID, carrierIDs.ControlID)
	ncc.SetSink(registry)
	gw := node.NewGWNode(categories[0].SpotID, clk, ncc, sched, handler, sink, carrierIDs.ControlID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw.Start(ctx)
	clk.Start(ctx)

	log.WithField("categories", len(categories)).
		WithField("aloha_replicas", alohaParams.NbReplicas).
		WithField("superframe_ms", reader.SuperframeDurationMs()).
		Info("gwcore starting")

	http.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	clk.Wait()
	gw.Stop()
	gw.Wait()
	return nil
}
