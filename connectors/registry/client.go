/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package registry resolves a network name to a public RPC endpoint using
// The Graph networks registry.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/adiom-data/poicheck/connectors/common"
)

const DefaultURL = "https://networks-registry.thegraph.com/TheGraphNetworksRegistry.json"

const DefaultTimeout = 30 * time.Second

type Network struct {
	ID        string   `json:"id"`
	ShortName string   `json:"shortName"`
	FullName  string   `json:"fullName"`
	Aliases   []string `json:"aliases"`
	RPCURLs   []string `json:"rpcUrls"`
}

type Registry struct {
	Version  string    `json:"version"`
	Networks []Network `json:"networks"`
}

// Lookup finds a network by id or alias.
func (r *Registry) Lookup(name string) (*Network, bool) {
	for i := range r.Networks {
		n := &r.Networks[i]
		if n.ID == name || slices.Contains(n.Aliases, name) {
			return n, true
		}
	}
	return nil, false
}

// PublicRPCURL returns the first RPC url of the network that does not need
// an API key substituted into it.
func (r *Registry) PublicRPCURL(name string) (string, error) {
	n, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("network %q not found in registry", name)
	}
	if len(n.RPCURLs) == 0 {
		return "", fmt.Errorf("no RPC URLs available for network %q", name)
	}
	for _, u := range n.RPCURLs {
		if !strings.Contains(u, "{") {
			return u, nil
		}
	}
	return "", fmt.Errorf("no public RPC URL for network %q", name)
}

// Fetch downloads the registry from url.
func Fetch(ctx context.Context, httpClient *http.Client, url string) (*Registry, error) {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch networks registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch networks registry: %w", &common.StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	var r Registry
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode networks registry: %w", err)
	}
	return &r, nil
}
