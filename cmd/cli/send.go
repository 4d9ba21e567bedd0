package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/tallysync/internal/archive"
	"github.com/dvloznov/tallysync/internal/relay"
)

var (
	connectorURL   string
	connectorToken string
)

var sendCmd = &cobra.Command{
	Use:   "send <file.xml|gs://bucket/object.xml>",
	Short: "Forward an XML document to the connector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		xml, err := readDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if strings.TrimSpace(xml) == "" {
			return fmt.Errorf("send: %s is empty", args[0])
		}

		receipt, err := relay.NewClient(log).Forward(cmd.Context(), endpoint(), xml)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", receipt.Message, receipt.Timestamp)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the connector is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := relay.NewClient(log).Probe(cmd.Context(), endpoint())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Connector: %s\n", status.State)
		if status.TunnelURL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Tunnel:    %s\n", status.TunnelURL)
		}
		if status.Timestamp != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Time:      %s\n", status.Timestamp)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, statusCmd} {
		c.Flags().StringVar(&connectorURL, "url", "", "connector URL (defaults to CONNECTOR_URL)")
	}
	sendCmd.Flags().StringVar(&connectorToken, "token", "", "bearer token (defaults to CONNECTOR_TOKEN)")
}

func endpoint() relay.Endpoint {
	ep := relay.Endpoint{URL: cfg.API.ConnectorURL, Token: secrets.ConnectorToken}
	if connectorURL != "" {
		ep.URL = connectorURL
	}
	if connectorToken != "" {
		ep.Token = connectorToken
	}
	return ep
}

// readDocument reads a local file or an archived export.
func readDocument(ctx context.Context, src string) (string, error) {
	if !strings.HasPrefix(src, "gs://") {
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("readDocument: %w", err)
		}
		return string(data), nil
	}

	bucket, _, err := archive.ParseURI(src)
	if err != nil {
		return "", fmt.Errorf("readDocument: %w", err)
	}
	gcs, err := archive.NewGCS(ctx, bucket)
	if err != nil {
		return "", fmt.Errorf("readDocument: %w", err)
	}
	defer gcs.Close()

	data, err := gcs.Fetch(ctx, src)
	if err != nil {
		return "", fmt.Errorf("readDocument: %w", err)
	}
	return string(data), nil
}
