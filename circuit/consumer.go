package circuit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/arcanaplatform/arcana/common"
)

const defaultNatsStream = "arcana"

const natsCircuitCompileSubject = "arcana.circuit.compile.pending"
const natsCircuitCompileFailedSubject = "arcana.circuit.compile.failed"
const natsCircuitCompileMaxInFlight = 8
const circuitCompileAckWait = time.Minute * 15
const circuitCompileMaxDeliveries = 3

// RequireConsumers establishes the shared NATS connection and subscribes the
// async circuit compilation consumers
func RequireConsumers(manager *Manager) {
	if !common.ConsumeNATSSubscriptions {
		common.Log.Debug("circuit package consumer configured to skip NATS subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	var waitGroup sync.WaitGroup

	createNatsCircuitCompileSubscriptions(manager, &waitGroup)
}

func createNatsCircuitCompileSubscriptions(manager *Manager, wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			circuitCompileAckWait,
			natsCircuitCompileSubject,
			natsCircuitCompileSubject,
			natsCircuitCompileSubject,
			func(msg *nats.Msg) {
				consumeCircuitCompileMsg(manager, msg)
			},
			circuitCompileAckWait,
			natsCircuitCompileMaxInFlight,
			circuitCompileMaxDeliveries,
			nil,
		)
	}
}

func consumeCircuitCompileMsg(manager *Manager, msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during async circuit compilation; %s", r)
			msg.Nak()
		}
	}()

	common.Log.Debugf("consuming %d-byte NATS circuit compile message on subject: %s", len(msg.Data), msg.Subject)

	params := map[string]interface{}{}
	err := json.Unmarshal(msg.Data, &params)
	if err != nil {
		common.Log.Warningf("failed to unmarshal circuit compile message; %s", err.Error())
		msg.Nak()
		return
	}

	circuitID, circuitIDOk := params["circuit_id"].(string)
	if !circuitIDOk {
		common.Log.Warning("failed to unmarshal circuit_id during compile message handler")
		msg.Nak()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), circuitCompileAckWait)
	defer cancel()

	_, err = manager.CompileAndPublish(ctx, circuitID)
	if err != nil {
		if _, inProgress := err.(*CompileInProgressError); inProgress {
			common.Log.Debugf("compilation already in progress for circuit %s; redelivering", circuitID)
			msg.Nak()
			return
		}

		common.Log.Warningf("failed to compile circuit %s; %s", circuitID, err.Error())
		natsutil.NatsJetstreamPublish(natsCircuitCompileFailedSubject, msg.Data)
		msg.Nak()
		return
	}

	common.Log.Debugf("async compilation completed for circuit %s", circuitID)
	msg.Ack()
}
