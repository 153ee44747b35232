/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/adiom-data/poicheck/pkg/divergence"
	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
)

type Options struct {
	Verbosity string
	Logfile   string

	Deployment         string
	APIKey             string
	NetworkSubgraphURL string

	MaxRetries     uint
	RequestTimeout time.Duration
	MaxConcurrency int
	RateLimit      int
	CacheSize      int
}

type DivergenceOptions struct {
	Options

	Indexer string

	// StartBlock and EndBlock are nil when they should be resolved.
	StartBlock     *uint64
	EndBlock       *uint64
	EndBlockMargin uint64

	IPFSURL     string
	RegistryURL string
	RPCURL      string

	ConfirmSamples int
}

type PoiOptions struct {
	Options

	Block   uint64
	Indexer string
}

func newOptions(c *cli.Context) Options {
	return Options{
		Verbosity:          c.String("verbosity"),
		Logfile:            c.String("logfile"),
		Deployment:         c.String("deployment"),
		APIKey:             c.String("api-key"),
		NetworkSubgraphURL: c.String("network-subgraph-url"),
		MaxRetries:         c.Uint("max-retries"),
		RequestTimeout:     c.Duration("request-timeout"),
		MaxConcurrency:     c.Int("max-concurrency"),
		RateLimit:          c.Int("rate-limit"),
		CacheSize:          c.Int("cache-size"),
	}
}

func NewDivergenceFromCLIContext(c *cli.Context) (DivergenceOptions, error) {
	o := DivergenceOptions{
		Options:        newOptions(c),
		Indexer:        c.String("indexer"),
		EndBlockMargin: c.Uint64("end-block-margin"),
		IPFSURL:        c.String("ipfs-url"),
		RegistryURL:    c.String("registry-url"),
		RPCURL:         c.String("rpc-url"),
		ConfirmSamples: c.Int("confirm-samples"),
	}
	if c.IsSet("start-block") {
		v := c.Uint64("start-block")
		o.StartBlock = &v
	}
	if c.IsSet("end-block") {
		v := c.Uint64("end-block")
		o.EndBlock = &v
	}
	return o, o.Validate()
}

func NewPoiFromCLIContext(c *cli.Context) (PoiOptions, error) {
	o := PoiOptions{
		Options: newOptions(c),
		Block:   c.Uint64("block"),
		Indexer: c.String("indexer"),
	}
	err := o.Validate()
	if !c.IsSet("block") {
		err = multierror.Append(err, errRequired("block"))
	}
	return o, err
}

// errRequired matches the wording urfave/cli uses for required flags. The
// check runs here because values may come from the config file, which is
// only loaded after cli checks required flags.
func errRequired(name string) error {
	return fmt.Errorf("required flag %q not set", name)
}

// Validate reports every problem with the options at once.
func (o Options) Validate() error {
	var result error
	if o.Deployment == "" {
		result = multierror.Append(result, errRequired("deployment"))
	} else if _, err := cid.Decode(o.Deployment); err != nil {
		result = multierror.Append(result, fmt.Errorf("deployment %q is not a valid IPFS hash: %w", o.Deployment, err))
	}
	if o.MaxRetries < 1 {
		result = multierror.Append(result, fmt.Errorf("max-retries: %w", divergence.ErrNoAttempts))
	}
	if o.RequestTimeout <= 0 {
		result = multierror.Append(result, errors.New("request-timeout must be positive"))
	}
	if o.MaxConcurrency < 0 {
		result = multierror.Append(result, errors.New("max-concurrency must not be negative"))
	}
	if o.RateLimit == 0 {
		result = multierror.Append(result, errors.New("rate-limit must not be zero, use a negative value for unlimited"))
	}
	if o.CacheSize < 0 {
		result = multierror.Append(result, errors.New("cache-size must not be negative"))
	}
	return result
}

func (o DivergenceOptions) Validate() error {
	result := o.Options.Validate()
	if o.Indexer == "" {
		result = multierror.Append(result, errRequired("indexer"))
	}
	if o.StartBlock != nil && o.EndBlock != nil && *o.StartBlock > *o.EndBlock {
		result = multierror.Append(result, fmt.Errorf("%w: start block %d is after end block %d", divergence.ErrInvalidRange, *o.StartBlock, *o.EndBlock))
	}
	if o.ConfirmSamples < 0 {
		result = multierror.Append(result, errors.New("confirm-samples must not be negative"))
	}
	return result
}
