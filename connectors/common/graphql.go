/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is returned for any non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "HTTP " + e.Status
	}
	return fmt.Sprintf("HTTP %v: %v", e.Status, e.Body)
}

type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLErrors is the errors array of a GraphQL response.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, m := range e {
		msgs = append(msgs, m.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse[T any] struct {
	Data   T             `json:"data"`
	Errors GraphQLErrors `json:"errors"`
}

// PostGraphQL sends query to url and decodes the data member of the response
// into T. GraphQL level errors are returned alongside whatever data was
// present; the caller decides whether they are fatal.
func PostGraphQL[T any](ctx context.Context, client *http.Client, url string, query string, bearer string) (T, GraphQLErrors, error) {
	var zero T
	body, err := json.Marshal(graphQLRequest{Query: query})
	if err != nil {
		return zero, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return zero, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return zero, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}

	var res graphQLResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return zero, nil, fmt.Errorf("decode response: %w", err)
	}
	return res.Data, res.Errors, nil
}
