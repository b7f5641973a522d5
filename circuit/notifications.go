package circuit

import (
	"encoding/json"

	natsutil "github.com/kthomas/go-natsutil"

	"github.com/arcanaplatform/arcana/common"
)

// circuit lifecycle notification subjects
const (
	natsCircuitRegisteredSubject = "arcana.circuit.registered"
	natsCircuitCompiledSubject   = "arcana.circuit.compiled"
	natsCircuitDeployedSubject   = "arcana.circuit.deployed"
	natsCircuitProofSubject      = "arcana.circuit.proof.generated"
)

// dispatchNotification publishes a lifecycle event for the given circuit;
// notification dispatch is best-effort and never fails the operation that
// triggered it
func dispatchNotification(subject string, circuit *Circuit) {
	if !common.DispatchNATSNotifications {
		return
	}

	payload, err := json.Marshal(circuit)
	if err != nil {
		common.Log.Warningf("failed to marshal %s notification payload; %s", subject, err.Error())
		return
	}

	_, err = natsutil.NatsJetstreamPublish(subject, payload)
	if err != nil {
		common.Log.Warningf("failed to publish %d-byte %s notification; %s", len(payload), subject, err.Error())
		return
	}

	common.Log.Debugf("published %d-byte %s notification for circuit %s", len(payload), subject, circuit.CircuitID)
}
