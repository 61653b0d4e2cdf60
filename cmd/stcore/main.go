// Command stcore runs one satellite terminal's return-link transmit side:
// the Slotted-Aloha TAL paced by the superframe clock, after sending a logon
// request to a GW peer. The binary hands no packets to the TAL
// (OnEncapPacket is never called), so it emits no data frames. Grounded on
// cmd/canopen/main.go's flag-parse-then-wire-then-run shape in the teacher
// repo, rebuilt around spf13/cobra like cmd/gwcore/main.go.
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
	"github.com/opensand/rcs2mac/pkg/backoff"
	"github.com/opensand/rcs2mac/pkg/clock"
	"github.com/opensand/rcs2mac/pkg/config"
	"github.com/opensand/rcs2mac/pkg/logon"
	"github.com/opensand/rcs2mac/pkg/node"
	"github.com/opensand/rcs2mac/pkg/probe"
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
		talID       uint16
		category    string
		craKbps     float64
		maxRbdc     float64
		maxVbdc     uint32
		seed        int64
	)

	root := &cobra.Command{
		Use:   "stcore",
		Short: "run a satellite terminal's return-link transmit core (Slotted-Aloha TAL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, metricsAddr, logLevel, peerAddr, talID, category, craKbps, maxRbdc, maxVbdc, seed)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "rcs2mac.ini", "path to the terminal ini configuration")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9111", "address to serve /metrics on")
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	root.Flags().StringVar(&peerAddr, "peer", "", "UDP address of the gateway peer (host:port)")
	root.Flags().Uint16Var(&talID, "tal-id", 1, "this terminal's tal_id")
	root.Flags().StringVar(&category, "category", "", "terminal category label to log on into")
	root.Flags().Float64Var(&craKbps, "cra-kbps", 0, "continuous rate assignment requested at logon")
	root.Flags().Float64Var(&maxRbdc, "max-rbdc-kbps", 0, "max RBDC rate this terminal may request")
	root.Flags().Uint32Var(&maxVbdc, "max-vbdc-pkt", 0, "max VBDC volume this terminal may request")
	root.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for slot selection (spec.md §5 reproducibility)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr, logLevel, peerAddr string, talID uint16, category string, craKbps, maxRbdc float64, maxVbdc uint32, seed int64) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)
	log := logrus.WithFields(logrus.Fields{"block": "stcore", "tal_id": talID})

	reader, err := config.LoadINIReader(configPath)
	if err != nil {
		return err
	}
	carrierIDs, err := reader.CarrierIDs()
	if err != nil {
		return err
	}
	alohaParams, err := reader.Aloha()
	if err != nil {
		return err
	}
	if category == "" {
		return fmt.Errorf("%w: --category is required", rcs2mac.ErrMissingParam)
	}

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

	registry := probe.NewRegistry("rcs2mac")

	var bo backoff.Algorithm
	switch alohaParams.BackoffAlgorithm {
	case "eied":
		bo = backoff.NewEIED(alohaParams.CwMin, alohaParams.CwMax, alohaParams.Multiple, seed)
	default:
		bo = backoff.NewBEB(alohaParams.CwMin, alohaParams.CwMax, alohaParams.Multiple, seed)
	}

	tal := aloha.NewTal(aloha.TalConfig{
		TalID:                talID,
		NbReplicas:           alohaParams.NbReplicas,
		NbMaxPacketsPerFrame: int(alohaParams.NbMaxPacketsPerFrame),
		NbMaxRetransmissions: alohaParams.NbMaxRetransmissions,
		TimeoutSuperframes:   alohaParams.TimeoutSuperframes,
		SlotsPerSuperframe:   alohaParams.SlotsPerSuperframe,
		CarrierID:            carrierIDs.DataOutST,
		Seed:                 seed,
	}, bo)
	tal.SetSink(registry)

	period := time.Duration(reader.SuperframeDurationMs()) * time.Millisecond
	clk := clock.New(period)
	spotID := uint16(0)
	stn := node.NewSTNode(talID, spotID, clk, tal, sink)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req := logon.Request{
		TalID:         talID,
		CategoryLabel: category,
		CraKbps:       craKbps,
		MaxRbdcKbps:   maxRbdc,
		MaxVbdcPkt:    maxVbdc,
	}
	logonFrame := &rcs2mac.DvbFrame{
		Header: rcs2mac.CommonHeader{
			MessageType:  rcs2mac.MsgLogonReq,
			CarrierID:    carrierIDs.LogonID,
			SpotID:       spotID,
			CniCentibels: rcs2mac.NoCni,
		},
		Payload: req.Encode(),
	}
	if err := sink.Send(logonFrame); err != nil {
		log.WithError(err).Warn("failed to send logon request")
	}

	stn.Start(ctx)
	clk.Start(ctx)

	log.WithField("category", category).
		WithField("superframe_ms", reader.SuperframeDurationMs()).
		Info("stcore starting")

	http.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	clk.Wait()
	stn.Stop()
	stn.Wait()
	return nil
}
