/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package network looks up the indexers allocated to a deployment on the
// network subgraph.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adiom-data/poicheck/connectors/common"
	"github.com/adiom-data/poicheck/pkg/divergence"
)

const DefaultURL = "https://gateway.thegraph.com/api/subgraphs/id/DZz4kDTdmzWLWsV373w2bSmoar3umKKH9y82SUKr5qmp"

const DefaultTimeout = 30 * time.Second

type ClientSettings struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(settings ClientSettings) *Client {
	c := &Client{url: settings.URL, apiKey: settings.APIKey, httpClient: settings.HTTPClient}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

type allocationsData struct {
	Allocations []struct {
		Indexer struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"indexer"`
	} `json:"allocations"`
}

func allocationsQuery(deployment divergence.DatasetRef) string {
	return fmt.Sprintf(`{
  allocations(first: 1000, where: { status: Active, subgraphDeployment_: { ipfsHash: "%s" } }) {
    indexer {
      id
      url
    }
  }
}`, deployment)
}

// Indexers returns the indexers with an active allocation on deployment,
// keyed by indexer id.
func (c *Client) Indexers(ctx context.Context, deployment divergence.DatasetRef) (divergence.PeerSet, error) {
	data, gqlErrs, err := common.PostGraphQL[allocationsData](ctx, c.httpClient, c.url, allocationsQuery(deployment), c.apiKey)
	if err != nil {
		return nil, fmt.Errorf("fetch allocations: %w", err)
	}
	if len(gqlErrs) > 0 {
		return nil, fmt.Errorf("fetch allocations: %w", gqlErrs)
	}

	peers := divergence.PeerSet{}
	for _, a := range data.Allocations {
		id := divergence.NodeID(a.Indexer.ID)
		if a.Indexer.URL == "" {
			slog.Debug("Indexer has no url", "indexer", id)
		}
		peers[id] = divergence.Node{ID: id, Endpoint: a.Indexer.URL}
	}
	return peers, nil
}
