/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

// Package ipfs reads subgraph manifests from an IPFS gateway.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adiom-data/poicheck/connectors/common"
	"github.com/adiom-data/poicheck/pkg/divergence"
	"gopkg.in/yaml.v3"
)

const DefaultURL = "https://ipfs.thegraph.com"

const DefaultTimeout = 30 * time.Second

type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{url: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// Manifest is the part of a subgraph manifest needed to resolve a block range.
type Manifest struct {
	DataSources []DataSource `yaml:"dataSources"`
}

type DataSource struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Network string `yaml:"network"`
	Source  struct {
		StartBlock uint64 `yaml:"startBlock"`
	} `yaml:"source"`
}

// StartBlock is the lowest start block over all data sources, or 0.
func (m *Manifest) StartBlock() divergence.Checkpoint {
	var start divergence.Checkpoint
	for i, ds := range m.DataSources {
		b := divergence.Checkpoint(ds.Source.StartBlock)
		if i == 0 || b < start {
			start = b
		}
	}
	return start
}

// Network is the network of the first data source that names one.
func (m *Manifest) Network() (string, bool) {
	for _, ds := range m.DataSources {
		if ds.Network != "" {
			return ds.Network, true
		}
	}
	return "", false
}

func ParseManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// FetchManifest downloads and parses the manifest of deployment.
func (c *Client) FetchManifest(ctx context.Context, deployment divergence.DatasetRef) (*Manifest, error) {
	u := c.url + "/ipfs/api/v0/cat?arg=" + url.QueryEscape(string(deployment))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch manifest: %w", &common.StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return ParseManifest(b)
}
