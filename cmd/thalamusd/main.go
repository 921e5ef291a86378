// Command thalamusd is the thalamus runtime process: it owns the reactor,
// the node graph, the observable state tree, and the RPC service, the way
// dastard's own main wires AnySource, RPC server, and DataPublisher
// together (rpc_server.go, publish_data.go) — generalized here to an
// arbitrary modality-typed node graph rather than one fixed pulse pipeline.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"

	"github.com/cajigaslab/Thalamus-sub000/internal/bus"
	"github.com/cajigaslab/Thalamus-sub000/internal/config"
	"github.com/cajigaslab/Thalamus-sub000/internal/genicam"
	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
	"github.com/cajigaslab/Thalamus-sub000/internal/rpcsvc"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML/JSON config file (THALAMUS_-prefixed env vars always apply)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("thalamusd: %v", err)
	}
	if os.Getenv("THALAMUS_DEBUG_CONFIG") != "" {
		log.Printf("thalamusd: config: %s", spew.Sdump(cfg))
	}

	r := reactor.New(cfg.ReactorQueue)
	g := graph.New(r)
	tree := obstree.New()

	// Per-adapter worker pools (deinterleave/FFT/compress, sized by
	// cfg.WorkerCount) are constructed by whatever composes concrete
	// hardware nodes onto g; the core process only needs the reactor and
	// graph themselves (§5).

	nodesDict := obstree.NewDict()
	tree.Root.Set("nodes", obstree.FromDict(nodesDict))

	if cfg.GenTLPath != "" {
		if ok := genicam.GlobalFacade().Init(cfg.GenTLPath); !ok {
			log.Printf("thalamusd: no GenTL transport modules loaded from %q", cfg.GenTLPath)
		} else {
			log.Printf("thalamusd: loaded %d GenTL transport module(s) from %q", len(genicam.GlobalFacade().Modules()), cfg.GenTLPath)
		}
	}

	var recordBus *bus.Bus
	if addr := os.Getenv("THALAMUS_BUS_ENDPOINT"); addr != "" {
		b, err := bus.New(addr)
		if err != nil {
			log.Printf("thalamusd: record bus disabled: %v", err)
		} else {
			recordBus = b
			defer recordBus.Close()
		}
	}

	svc := rpcsvc.New(g, r, tree)
	if recordBus != nil {
		svc.Bus = recordBus
	}

	if err := rpcsvc.RunControlServer(cfg.ControlAddr, svc); err != nil {
		log.Fatalf("thalamusd: control server: %v", err)
	}
	log.Printf("thalamusd: control (NodeRequest) listening on %s", cfg.ControlAddr)

	go func() {
		log.Printf("thalamusd: streaming RPC listening on %s", cfg.ListenAddr)
		if err := svc.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatalf("thalamusd: streaming RPC server: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	log.Printf("thalamusd: shutting down")
	r.Stop()
}
