package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-flyover/internal/geo"
	"recon-flyover/internal/mission"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, message{subject, data})
	return nil
}

func TestPublishCompleted(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "")

	r := mission.NewResult("m-1", "Keem Bay", "Achill Island")
	r.Coordinate = geo.Coordinate{Latitude: 53.9667, Longitude: -10.1917}
	r.Status = mission.StatusSuccess
	r.Frames = []mission.FrameSummary{{Index: "1"}, {Index: "center"}}
	r.ViewerPath = "out/drone_simulation.html"

	require.NoError(t, p.PublishResult(r))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "recon.mission.completed", conn.msgs[0].subject)

	var ev MissionEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &ev))
	assert.Equal(t, "m-1", ev.MissionID)
	assert.Equal(t, EventCompleted, ev.Event)
	assert.Equal(t, 2, ev.Frames)
	assert.Equal(t, 53.9667, ev.Latitude)
	assert.Equal(t, "out/drone_simulation.html", ev.ViewerPath)
}

func TestPublishFailed(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "ops.recon")

	r := mission.NewResult("m-2", "Nowhere", "")
	r.MarkFailed(errors.New("flyover sequence is empty"))

	require.NoError(t, p.PublishResult(r))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "ops.recon.failed", conn.msgs[0].subject)
	assert.Contains(t, string(conn.msgs[0].data), "flyover sequence is empty")
}

func TestPublishSkipsRunningAndNil(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "")

	r := mission.NewResult("m-3", "Keel", "")
	r.MarkRunning()
	require.NoError(t, p.PublishResult(r))
	assert.Empty(t, conn.msgs)

	var nilPub *Publisher
	assert.NoError(t, nilPub.PublishResult(r))
	assert.NoError(t, NewPublisher(nil, "").PublishResult(r))
}

func TestPublishError(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "")
	r := mission.NewResult("m-4", "Keel", "")
	r.Status = mission.StatusSuccess

	err := p.PublishResult(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recon.mission.completed")
}
