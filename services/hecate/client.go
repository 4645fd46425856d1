// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hecate is a read-only client for the Hecate feature store API.
//
// Only the two endpoints needed to compute reversions are implemented:
//
//	GET /api/delta/{id}
//	GET /api/data/feature/{id}/history
//
// Requests are paced by a token-bucket limiter. When credentials are
// configured they are sent as HTTP basic auth; the password is held in a
// memguard enclave and only decrypted for the duration of each request.
package hecate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"github.com/awnumar/memguard"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Hecate server used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the scheme, host and port of the Hecate server.
	BaseURL string

	// Username and Password enable basic auth when both are set.
	Username string
	Password string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RequestsPerSecond limits request rate. Zero or negative disables
	// limiting.
	RequestsPerSecond float64

	// HTTPClient overrides the transport. Defaults to an *http.Client with
	// Timeout.
	HTTPClient HTTPClient

	// Logger may be nil.
	Logger *slog.Logger
}

// Client fetches deltas and feature histories.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	base     *url.URL
	http     HTTPClient
	limiter  *rate.Limiter
	username string
	password *memguard.Enclave
	logger   *slog.Logger
}

// NewClient creates a Client from cfg.
//
// The Password field is copied into an enclave; the caller's string is not
// modified.
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q has no host", ErrInvalidConfig, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		base:    base,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
	if cfg.Username != "" && cfg.Password != "" {
		c.username = cfg.Username
		c.password = memguard.NewEnclave([]byte(cfg.Password))
	}
	return c, nil
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Authenticated reports whether requests carry basic auth.
func (c *Client) Authenticated() bool {
	return c.password != nil
}

// GetDelta fetches the edits introduced by delta id.
func (c *Client) GetDelta(ctx context.Context, id int64) (feature.Delta, error) {
	var resp deltaResponse
	if err := c.getJSON(ctx, "/api/delta/"+strconv.FormatInt(id, 10), &resp); err != nil {
		return feature.Delta{}, err
	}
	deltaID := resp.ID
	if deltaID == 0 {
		deltaID = id
	}
	return feature.Delta{
		ID:       deltaID,
		Message:  resp.Props.Message,
		Features: resp.Features.Features,
	}, nil
}

// GetFeatureHistory fetches every recorded edit of feature id. The order of
// the returned history is the server's.
func (c *Client) GetFeatureHistory(ctx context.Context, id int64) (feature.History, error) {
	var items []historyItem
	if err := c.getJSON(ctx, "/api/data/feature/"+strconv.FormatInt(id, 10)+"/history", &items); err != nil {
		return nil, err
	}
	history := make(feature.History, 0, len(items))
	for _, item := range items {
		if item.Feat.ID == 0 {
			item.Feat.ID = id
		}
		history = append(history, item.Feat)
	}
	return history, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("hecate request",
		"url", u,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        u,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrMalformedResponse, u, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.password == nil {
		return nil
	}
	buf, err := c.password.Open()
	if err != nil {
		return fmt.Errorf("open credential enclave: %w", err)
	}
	defer buf.Destroy()
	req.SetBasicAuth(c.username, buf.String())
	return nil
}
