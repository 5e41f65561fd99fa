// Package sfu talks to the external media-forwarding unit's control API.
// The media plane itself (packet routing, codecs) lives in the SFU; only
// routers, transports and producers are provisioned from here.
package sfu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/teamhub/callwire/internal/domain"
)

// ErrMediaUnavailable wraps any failed control-plane call. It is transient:
// local caches are untouched and the requester may retry.
var ErrMediaUnavailable = errors.New("media unit unavailable")

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// TransportDescriptor is what the SFU hands back for one media transport.
// ICE fields use pion types so clients get well-formed parameters.
type TransportDescriptor struct {
	ID             string                    `json:"id"`
	ICEParameters  webrtc.ICEParameters      `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidateInit `json:"iceCandidates,omitempty"`
	DTLSParameters json.RawMessage           `json:"dtlsParameters,omitempty"`
}

// Client is the raw HTTP control-plane client. The bridge layers caching and
// idempotence on top of it.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateRouter(ctx context.Context, group domain.GroupID) (string, error) {
	var resp struct {
		RouterID string `json:"routerId"`
	}
	err := c.post(ctx, "/create-router", map[string]any{"groupId": group}, &resp)
	if err != nil {
		return "", err
	}
	return resp.RouterID, nil
}

func (c *Client) CreateTransport(ctx context.Context, routerID string, dir Direction) (TransportDescriptor, error) {
	var resp TransportDescriptor
	err := c.post(ctx, "/create-transport", map[string]any{
		"routerId": routerID,
		"type":     string(dir),
	}, &resp)
	return resp, err
}

func (c *Client) CreateProducer(ctx context.Context, routerID string, kind TrackKind, rtpParameters json.RawMessage) (string, error) {
	var resp struct {
		ProducerID string `json:"producerId"`
	}
	err := c.post(ctx, "/create-producer", map[string]any{
		"routerId":      routerID,
		"kind":          string(kind),
		"rtpParameters": rtpParameters,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ProducerID, nil
}

// RouterRTPCapabilities is a passthrough, never cached.
func (c *Client) RouterRTPCapabilities(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/router-rtp", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrMediaUnavailable, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %s status %d", ErrMediaUnavailable, path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMediaUnavailable, path, err)
	}
	return nil
}
