package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timayz/pikav"
	"github.com/timayz/pikav/cluster"
)

// newPublishCmd is a one-shot publish against a running node's cluster RPC,
// mirroring upstream's cmd/src/publish.rs.
func newPublishCmd() *cobra.Command {
	var addr string
	var name string
	var dataJSON string
	var metaJSON string

	cmd := &cobra.Command{
		Use:   "publish <user-id> <topic>",
		Short: "publish a single event to a running pikavd node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, topicName := args[0], args[1]

			var data any
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("pikavd publish: invalid --data JSON: %w", err)
				}
			}

			var metadata any
			if metaJSON != "" {
				if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
					return fmt.Errorf("pikavd publish: invalid --metadata JSON: %w", err)
				}
			}

			data = pikav.SanitizeValue(data)
			metadata = pikav.SanitizeValue(metadata)

			peer, err := cluster.NewPeer("tcp://" + addr)
			if err != nil {
				return err
			}

			event := cluster.EventPayload{
				UserID:   userID,
				Topic:    topicName,
				Name:     name,
				Data:     data,
				Metadata: metadata,
			}

			if err := peer.Publish([]cluster.EventPayload{event}, true); err != nil {
				return fmt.Errorf("pikavd publish: %w", err)
			}

			fmt.Printf("published %q to %q for user %q\n", name, topicName, userID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:9090", "target node's cluster RPC address")
	f.StringVar(&name, "name", "message", "event name")
	f.StringVar(&dataJSON, "data", "", "event data, as a JSON literal")
	f.StringVar(&metaJSON, "metadata", "", "event metadata, as a JSON literal")

	return cmd
}
