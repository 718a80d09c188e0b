package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomsight/weavesync/internal/dispatch"
	"github.com/loomsight/weavesync/internal/engine"
	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/httputil"
	"github.com/loomsight/weavesync/internal/monitoring"
)

func testClient(stub *httputil.StubClient) *Client {
	return NewClient("http://weave.local:5000", stub, monitoring.NewLogger("disabled"))
}

func testBatch() engine.PictureBatch {
	pair := hardware.PicturePair{
		Left:  hardware.Picture{Data: []byte("left-img"), ISO: 400, ExposureTime: 0.05, DiaphragmOpening: 5.6},
		Right: hardware.Picture{Data: []byte("right-img"), ISO: 400, ExposureTime: 0.05, DiaphragmOpening: 5.6},
	}
	return engine.PictureBatch{
		ID: uuid.New(),
		Lights: []engine.LightCapture{
			{Light: hardware.LightGreen, CreatedAt: time.Unix(1700000000, 0), VelocityCmMin: 31.5, DisplacementCm: 22.6, Pictures: pair},
			{Light: hardware.LightBlue, CreatedAt: time.Unix(1700000001, 0), VelocityCmMin: 31.2, DisplacementCm: 22.7, Pictures: pair},
		},
	}
}

func TestPingExpectsNoContent(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusNoContent, "")
	require.NoError(t, testClient(stub).Ping(context.Background()))

	req := stub.Request(0)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/ping", req.URL.Path)
}

func TestPingRejectsWrongStatus(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusOK, "pong")
	err := testClient(stub).Ping(context.Background())
	assert.ErrorContains(t, err, "unexpected status 200")
}

func TestSendBatchPostsWireFormat(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusCreated, "")
	batch := testBatch()
	require.NoError(t, testClient(stub).SendBatch(context.Background(), batch))

	req := stub.Request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/pictures_batch", req.URL.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var payload struct {
		Lights []struct {
			Light               string  `json:"light"`
			CreationDate        string  `json:"creation_date"`
			SurfaceVelocity     float64 `json:"surface_velocity"`
			SurfaceDisplacement float64 `json:"surface_displacement"`
			Pictures            struct {
				Left struct {
					Picture          string  `json:"picture"`
					ISO              int     `json:"iso"`
					ExposureTime     float64 `json:"exposure_time"`
					DiaphragmOpening float64 `json:"diaphragm_opening"`
				} `json:"left"`
			} `json:"pictures"`
		} `json:"lights"`
	}
	require.NoError(t, json.Unmarshal([]byte(stub.Body(0)), &payload))
	require.Len(t, payload.Lights, 2)

	green := payload.Lights[0]
	assert.Equal(t, "green", green.Light)
	assert.Equal(t, 31.5, green.SurfaceVelocity)
	assert.Equal(t, 22.6, green.SurfaceDisplacement)
	_, err := time.Parse(time.RFC3339Nano, green.CreationDate)
	assert.NoError(t, err, "creation_date must be RFC 3339")

	// Binary picture data crosses the wire base64-encoded.
	raw, err := base64.StdEncoding.DecodeString(green.Pictures.Left.Picture)
	require.NoError(t, err)
	assert.Equal(t, "left-img", string(raw))
	assert.Equal(t, 400, green.Pictures.Left.ISO)

	assert.Equal(t, "blue", payload.Lights[1].Light)
}

func TestSendBatchRejectsNonCreatedStatus(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusInternalServerError, "boom")
	err := testClient(stub).SendBatch(context.Background(), testBatch())
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestSendBatchSurfacesTransportErrors(t *testing.T) {
	stub := httputil.NewStubClient().StubErr(errors.New("connection refused"))
	err := testClient(stub).SendBatch(context.Background(), testBatch())
	assert.ErrorContains(t, err, "connection refused")
}

func TestSendStatusPostsSurfaceMovement(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusCreated, "")
	c := testClient(stub)

	report := dispatch.StatusReport{VelocityCmMin: 29.8, DisplacementCm: 103.4}
	require.NoError(t, c.SendStatus(context.Background(), report))

	req := stub.Request(0)
	assert.Equal(t, "/surface_movement", req.URL.Path)

	var payload map[string]float64
	require.NoError(t, json.Unmarshal([]byte(stub.Body(0)), &payload))
	assert.Equal(t, 29.8, payload["velocity"])
	assert.Equal(t, 103.4, payload["displacement"])
}

// spyBody observes whether a response body was fully read and closed.
type spyBody struct {
	data   *bytes.Reader
	closed bool
}

func (b *spyBody) Read(p []byte) (int, error) { return b.data.Read(p) }
func (b *spyBody) Close() error {
	b.closed = true
	return nil
}

type spyDoer struct {
	status int
	body   *spyBody
}

func (d *spyDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: d.status,
		Body:       d.body,
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestResponseBodiesAreDrainedAndClosed(t *testing.T) {
	body := &spyBody{data: bytes.NewReader([]byte("ignored server chatter"))}
	c := NewClient("http://weave.local:5000", &spyDoer{status: http.StatusNoContent, body: body}, monitoring.NewLogger("disabled"))

	require.NoError(t, c.Ping(context.Background()))

	// Fully drained and closed, so the transport can reuse the connection.
	assert.Zero(t, body.data.Len(), "response body left undrained")
	assert.True(t, body.closed, "response body left unclosed")
}

func TestSendStatusRejectsNonCreatedStatus(t *testing.T) {
	stub := httputil.NewStubClient().Stub(http.StatusAccepted, "")
	err := testClient(stub).SendStatus(context.Background(), dispatch.StatusReport{})
	assert.ErrorContains(t, err, "unexpected status 202")
}
