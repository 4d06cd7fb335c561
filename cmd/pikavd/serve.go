package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/timayz/pikav"
	"github.com/timayz/pikav/api"
	"github.com/timayz/pikav/cluster"
	"github.com/timayz/pikav/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a pikav publisher node",
		RunE:  runServe,
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "HTTP glue listen address")
	f.String("cluster-addr", ":9090", "cluster RPC listen address")
	f.String("jwks-url", "", "JWKS document URL used to verify bearer tokens")
	f.String("metrics-auth", "", "bearer token required to read /metrics (empty disables the gate)")
	f.StringSlice("peers", nil, "cluster peer URLs, e.g. tcp://node-b:9090?same_region=true")
	bindConfigFlag(cmd)

	bindFlag := func(viperKey, flagName string) { _ = viper.BindPFlag(viperKey, f.Lookup(flagName)) }
	bindFlag("addr", "addr")
	bindFlag("cluster_addr", "cluster-addr")
	bindFlag("jwks_url", "jwks-url")
	bindFlag("metrics_auth", "metrics-auth")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfigFile(cmd); err != nil {
		return err
	}

	cfg := config.Load()

	peerURLs, _ := cmd.Flags().GetStringSlice("peers")
	for _, u := range peerURLs {
		cfg.Peers = append(cfg.Peers, config.Peer{URL: u})
	}

	pub := pikav.NewPublisher()
	pub.Start()
	defer pub.Stop()

	clusterSrv := cluster.NewServer(pub)
	var peers []*cluster.Peer
	for _, p := range cfg.Peers {
		peer, err := cluster.NewPeer(p.URL)
		if err != nil {
			log.Error().Err(err).Str("url", p.URL).Msg("pikavd: skipping invalid peer")
			continue
		}
		peer.Start()
		defer peer.Stop()
		clusterSrv.AddPeer(peer)
		peers = append(peers, peer)
	}

	apiOpts := []api.Option{api.WithPeers(peers...)}
	if cfg.MetricsAuth != "" {
		apiOpts = append(apiOpts, api.WithMetricsAuth(cfg.MetricsAuth))
	}
	apiSrv := api.NewServer(pub, cfg.JWKSURL, apiOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.ClusterAddr).Msg("pikavd: cluster RPC listening")
		errCh <- clusterSrv.Serve(cfg.ClusterAddr)
	}()
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("pikavd: HTTP glue listening")
		errCh <- apiSrv.ListenAndServe(ctx, cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("pikavd: shutting down")
		_ = clusterSrv.Close()
		return nil
	case err := <-errCh:
		cancel()
		_ = clusterSrv.Close()
		return err
	}
}
