package telemetry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.neose-cxof-flow.gocv-driver/pipeline"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publications; other mqtt.Client methods are unused.
type fakeClient struct {
	mqtt.Client
	msgs         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return nil
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func TestPublishSample(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherWithClient(client, "cxof/flow", "abc")

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.PublishSample(pipeline.Sample{Seq: 7, Timestamp: ts, DX: -35, DY: 53, Quality: 255, Status: "valid", CycleMs: 12.5}))

	require.Len(t, client.msgs, 1)
	assert.Equal(t, "cxof/flow/measurement", client.msgs[0].topic)
	assert.Equal(t, byte(0), client.msgs[0].qos)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &got))
	assert.Equal(t, "abc", got["session"])
	assert.Equal(t, float64(-35), got["dx"])
	assert.Equal(t, float64(53), got["dy"])
	assert.Equal(t, "valid", got["status"])
	assert.NotContains(t, got, "saturated")
}

func TestPublishReport(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherWithClient(client, "t", "s")

	require.NoError(t, p.PublishReport(pipeline.Report{Cycles: 30, MeanMs: 10, FPS: 100}))
	require.Len(t, client.msgs, 1)
	assert.Equal(t, "t/report", client.msgs[0].topic)

	var r pipeline.Report
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &r))
	assert.Equal(t, pipeline.Report{Session: "s", Cycles: 30, MeanMs: 10, FPS: 100}, r)

	p.Close()
	assert.True(t, client.disconnected)
}

func TestPublishFrame(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherWithClient(client, "t", "s")

	img := image.NewGray(image.Rect(0, 0, 8, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 7)
	}
	require.NoError(t, p.PublishFrame(img))
	require.Len(t, client.msgs, 1)
	assert.Equal(t, "t/frame", client.msgs[0].topic)

	raw, err := base64.StdEncoding.DecodeString(string(client.msgs[0].payload))
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	gray, ok := decoded.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, img.Pix, gray.Pix)
}
