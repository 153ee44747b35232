/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package indexer fetches proofs of indexing from an indexer's public
// status endpoint.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/adiom-data/poicheck/connectors/common"
	"github.com/adiom-data/poicheck/pkg/divergence"
)

const DefaultTimeout = 10 * time.Second

type ClientSettings struct {
	// Timeout bounds a single request. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a divergence.DigestSource. Every call is exactly one round trip.
type Client struct {
	httpClient *http.Client
}

func NewClient(settings ClientSettings) *Client {
	if settings.HTTPClient != nil {
		return &Client{httpClient: settings.HTTPClient}
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: settings.Timeout}}
}

type proofOfIndexing struct {
	Deployment      string `json:"deployment"`
	ProofOfIndexing string `json:"proofOfIndexing"`
	Block           *struct {
		Number string `json:"number"`
	} `json:"block"`
}

type statusData struct {
	PublicProofsOfIndexing []proofOfIndexing `json:"publicProofsOfIndexing"`
}

// StatusURL resolves "status" against the indexer endpoint the way a
// browser resolves a relative link.
func StatusURL(endpoint string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid indexer url %q", endpoint)
	}
	return base.ResolveReference(&url.URL{Path: "status"}).String(), nil
}

func proofsQuery(ref divergence.DatasetRef, checkpoint divergence.Checkpoint) string {
	return fmt.Sprintf(`{ publicProofsOfIndexing(requests: [{deployment: "%s", blockNumber: "%d"}]) { deployment proofOfIndexing block { number } } }`, ref, checkpoint)
}

func (c *Client) Digest(ctx context.Context, node divergence.Node, ref divergence.DatasetRef, checkpoint divergence.Checkpoint) (divergence.Digest, error) {
	fail := func(kind divergence.FetchErrorKind, err error) (divergence.Digest, error) {
		return "", &divergence.FetchError{Kind: kind, Node: node.ID, Checkpoint: checkpoint, Err: err}
	}

	statusURL, err := StatusURL(node.Endpoint)
	if err != nil {
		return fail(divergence.FetchTransport, err)
	}

	data, gqlErrs, err := common.PostGraphQL[statusData](ctx, c.httpClient, statusURL, proofsQuery(ref, checkpoint), "")
	if err != nil {
		var statusErr *common.StatusError
		if errors.As(err, &statusErr) {
			return fail(divergence.FetchStatus, err)
		}
		return fail(divergence.FetchTransport, err)
	}

	if len(data.PublicProofsOfIndexing) == 0 {
		if len(gqlErrs) > 0 {
			return fail(divergence.FetchEmpty, gqlErrs)
		}
		return fail(divergence.FetchEmpty, fmt.Errorf("no proof of indexing for block %d", checkpoint))
	}
	poi := data.PublicProofsOfIndexing[0].ProofOfIndexing
	if poi == "" {
		return fail(divergence.FetchEmpty, fmt.Errorf("null proof of indexing for block %d", checkpoint))
	}
	return divergence.Digest(poi), nil
}

var _ divergence.DigestSource = &Client{}
