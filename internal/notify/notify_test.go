package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gridwarden/pkg/logging"
)

type fakeChannel struct {
	name  string
	calls int32
}

func (f *fakeChannel) Name() string { return f.name }
func (f *fakeChannel) Send(ctx context.Context, alert Payload) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestAlertFansOutToAllChannels(t *testing.T) {
	logger, _ := logging.NewZapLogger("ERROR")
	mgr := NewManager(logger)

	ch1 := &fakeChannel{name: "a"}
	ch2 := &fakeChannel{name: "b"}
	mgr.AddChannel(ch1)
	mgr.AddChannel(ch2)

	mgr.Alert(context.Background(), "strat-1", "title", "message", Warning, nil)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ch1.calls) == 1 && atomic.LoadInt32(&ch2.calls) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLogChannelNeverErrors(t *testing.T) {
	logger, _ := logging.NewZapLogger("ERROR")
	ch := NewLogChannel(logger)
	err := ch.Send(context.Background(), Payload{Level: Critical, Title: "t", Message: "m"})
	assert.NoError(t, err)
}
