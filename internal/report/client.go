// Package report is the HTTP client for the central weaving server: picture
// batches, surface movement reports and the ping preflight.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/dispatch"
	"github.com/loomsight/weavesync/internal/engine"
	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/httputil"
)

// Server routes.
const (
	pingPath            = "/ping"
	picturesBatchPath   = "/pictures_batch"
	surfaceMovementPath = "/surface_movement"
)

// picturePayload is one camera image. Data is a []byte so encoding/json
// transports it as base64.
type picturePayload struct {
	Picture          []byte  `json:"picture"`
	ISO              int     `json:"iso"`
	ExposureTime     float64 `json:"exposure_time"`
	DiaphragmOpening float64 `json:"diaphragm_opening"`
}

type picturePairPayload struct {
	Left  picturePayload `json:"left"`
	Right picturePayload `json:"right"`
}

type lightPayload struct {
	Light               string             `json:"light"`
	CreationDate        string             `json:"creation_date"`
	SurfaceVelocity     float64            `json:"surface_velocity"`
	SurfaceDisplacement float64            `json:"surface_displacement"`
	Pictures            picturePairPayload `json:"pictures"`
}

type batchPayload struct {
	Lights []lightPayload `json:"lights"`
}

type surfaceMovementPayload struct {
	Velocity     float64 `json:"velocity"`
	Displacement float64 `json:"displacement"`
}

// Client talks to one weaving server. It satisfies dispatch.Sender.
type Client struct {
	base string
	http httputil.Client
	log  zerolog.Logger
}

// NewClient creates a client for the server at base, e.g.
// "http://127.0.0.1:5000".
func NewClient(base string, doer httputil.Client, log zerolog.Logger) *Client {
	return &Client{base: base, http: doer, log: log}
}

// Ping checks server reachability. Used as a startup preflight; a failure is
// reported, not fatal, because the dispatch path retries anyway.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+pingPath, nil)
	if err != nil {
		return err
	}
	return c.expect(req, http.StatusNoContent)
}

// SendBatch posts a picture batch, expecting 201.
func (c *Client) SendBatch(ctx context.Context, batch engine.PictureBatch) error {
	payload := batchPayload{Lights: make([]lightPayload, 0, len(batch.Lights))}
	for _, capture := range batch.Lights {
		payload.Lights = append(payload.Lights, lightPayload{
			Light:               string(capture.Light),
			CreationDate:        capture.CreatedAt.UTC().Format(time.RFC3339Nano),
			SurfaceVelocity:     capture.VelocityCmMin,
			SurfaceDisplacement: capture.DisplacementCm,
			Pictures: picturePairPayload{
				Left:  toPicturePayload(capture.Pictures.Left),
				Right: toPicturePayload(capture.Pictures.Right),
			},
		})
	}
	if err := c.postJSON(ctx, picturesBatchPath, payload); err != nil {
		return fmt.Errorf("pictures batch %s: %w", batch.ID, err)
	}
	c.log.Debug().Str("batch_id", batch.ID.String()).Msg("picture batch delivered")
	return nil
}

// SendStatus posts one surface movement report, expecting 201.
func (c *Client) SendStatus(ctx context.Context, report dispatch.StatusReport) error {
	payload := surfaceMovementPayload{
		Velocity:     report.VelocityCmMin,
		Displacement: report.DisplacementCm,
	}
	if err := c.postJSON(ctx, surfaceMovementPath, payload); err != nil {
		return fmt.Errorf("surface movement: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.expect(req, http.StatusCreated)
}

func (c *Client) expect(req *http.Request, status int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	// Drain so the transport can reuse the connection; at the status report
	// cadence a fresh handshake per request adds up.
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != status {
		return fmt.Errorf("%s %s: unexpected status %d (want %d)", req.Method, req.URL.Path, resp.StatusCode, status)
	}
	return nil
}

func toPicturePayload(p hardware.Picture) picturePayload {
	return picturePayload{
		Picture:          p.Data,
		ISO:              p.ISO,
		ExposureTime:     p.ExposureTime,
		DiaphragmOpening: p.DiaphragmOpening,
	}
}
