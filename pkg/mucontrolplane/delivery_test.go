package mucontrolplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

func TestDelivery_EditorChannelsAreNoOp(t *testing.T) {
	d := &Delivery{}
	for _, ch := range []string{"neovim", "vscode"} {
		rec := &mucore.OutboxRecord{Envelope: mucore.OutboundEnvelope{Channel: ch, Body: "hi"}}
		assert.NoError(t, d.Deliver(context.Background(), rec))
	}
}

func TestDelivery_UnconfiguredChannelErrors(t *testing.T) {
	d := &Delivery{}
	rec := &mucore.OutboxRecord{Envelope: mucore.OutboundEnvelope{Channel: "slack", Body: "hi"}}
	assert.Error(t, d.Deliver(context.Background(), rec))
}

func TestDelivery_UnknownChannelErrors(t *testing.T) {
	d := &Delivery{}
	rec := &mucore.OutboxRecord{Envelope: mucore.OutboundEnvelope{Channel: "carrier-pigeon", Body: "hi"}}
	assert.Error(t, d.Deliver(context.Background(), rec))
}
